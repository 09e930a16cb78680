package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/m3rciful/vocalbot/core/logger"
	"github.com/m3rciful/vocalbot/internal/booking"
)

const componentStore = "store"

const bookingColumns = `id, provider_id, lesson_date, lesson_hour, requester_id, display_name,
	status, cancelled_by, created_at, updated_at`

const feedbackColumns = `id, booking_id, stars, comment, moderation_state, created_at`

// SQLStore persists bookings through sqlx. It works with the postgres and sqlite drivers.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open connection. The schema must already be migrated.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ booking.Store = (*SQLStore)(nil)

type bookingRow struct {
	ID          string    `db:"id"`
	ProviderID  string    `db:"provider_id"`
	LessonDate  dateValue `db:"lesson_date"`
	LessonHour  string    `db:"lesson_hour"`
	RequesterID string    `db:"requester_id"`
	DisplayName string    `db:"display_name"`
	Status      string    `db:"status"`
	CancelledBy string    `db:"cancelled_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func toBookingRow(b booking.Booking) bookingRow {
	return bookingRow{
		ID:          b.ID,
		ProviderID:  b.ProviderID,
		LessonDate:  dateValue{b.Date},
		LessonHour:  b.Hour,
		RequesterID: b.RequesterID,
		DisplayName: b.DisplayName,
		Status:      string(b.Status),
		CancelledBy: string(b.CancelledBy),
		CreatedAt:   b.CreatedAt.UTC(),
		UpdatedAt:   b.UpdatedAt.UTC(),
	}
}

func (r bookingRow) toBooking() booking.Booking {
	return booking.Booking{
		ID:          r.ID,
		ProviderID:  r.ProviderID,
		Date:        r.LessonDate.Date,
		Hour:        r.LessonHour,
		RequesterID: r.RequesterID,
		DisplayName: r.DisplayName,
		Status:      booking.Status(r.Status),
		CancelledBy: booking.Role(r.CancelledBy),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type feedbackRow struct {
	ID              string    `db:"id"`
	BookingID       string    `db:"booking_id"`
	Stars           int       `db:"stars"`
	Comment         string    `db:"comment"`
	ModerationState string    `db:"moderation_state"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r feedbackRow) toFeedback() booking.Feedback {
	return booking.Feedback{
		ID:              r.ID,
		BookingID:       r.BookingID,
		Stars:           r.Stars,
		Comment:         r.Comment,
		ModerationState: booking.ModerationState(r.ModerationState),
		CreatedAt:       r.CreatedAt,
	}
}

// dateValue stores a civil.Date as YYYY-MM-DD. It scans both DATE columns
// (postgres returns time.Time) and TEXT columns (sqlite).
type dateValue struct {
	civil.Date
}

func (d dateValue) Value() (driver.Value, error) {
	return d.Date.String(), nil
}

func (d *dateValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Date = civil.DateOf(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("storage: cannot scan %T into date", src)
	}
}

func (d *dateValue) parse(s string) error {
	if len(s) > len("2006-01-02") {
		s = s[:len("2006-01-02")]
	}
	parsed, err := civil.ParseDate(s)
	if err != nil {
		return fmt.Errorf("storage: parse date: %w", err)
	}
	d.Date = parsed
	return nil
}

func (s *SQLStore) Create(ctx context.Context, b booking.Booking) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (:id, :provider_id, :lesson_date, :lesson_hour, :requester_id, :display_name,
			:status, :cancelled_by, :created_at, :updated_at)`, toBookingRow(b))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", booking.ErrSlotTaken, b.Key())
	}
	if err != nil {
		s.logFailure(ctx, "booking.insert", err, slog.String("booking_id", b.ID))
		return fmt.Errorf("storage: insert booking: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (booking.Booking, error) {
	return s.get(ctx, s.db, id)
}

func (s *SQLStore) get(ctx context.Context, q sqlx.QueryerContext, id string) (booking.Booking, error) {
	var row bookingRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
	}
	if err != nil {
		return booking.Booking{}, fmt.Errorf("storage: get booking: %w", err)
	}
	return row.toBooking(), nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, id string, from, to booking.Status, cancelledBy booking.Role, at time.Time) (booking.Booking, error) {
	var out booking.Booking
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE bookings SET status = ?, cancelled_by = ?, updated_at = ?
			WHERE id = ? AND status = ?`),
			string(to), string(cancelledBy), at.UTC(), id, string(from))
		if err != nil {
			return fmt.Errorf("storage: update status: %w", err)
		}
		current, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: booking %s is %s", booking.ErrStatusChanged, id, current.Status)
		}
		out = current
		return nil
	})
	return out, err
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM feedback WHERE booking_id = ?`), id); err != nil {
			return fmt.Errorf("storage: delete feedback: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM bookings WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("storage: delete booking: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
		}
		return nil
	})
}

func (s *SQLStore) List(ctx context.Context, f booking.Filter) ([]booking.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.ProviderID != "" {
		where = append(where, "provider_id = ?")
		args = append(args, f.ProviderID)
	}
	if f.RequesterID != "" {
		where = append(where, "requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if !f.From.IsZero() {
		where = append(where, "lesson_date >= ?")
		args = append(args, dateValue{f.From})
	}
	if !f.To.IsZero() {
		where = append(where, "lesson_date <= ?")
		args = append(args, dateValue{f.To})
	}
	if f.ActiveOnly {
		where = append(where, "status NOT IN (?, ?)")
		args = append(args, string(booking.StatusCancelled), string(booking.StatusRejected))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status IN (?)")
		args = append(args, statuses)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY lesson_date, lesson_hour, created_at, id`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: build list query: %w", err)
	}
	var rows []bookingRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("storage: list bookings: %w", err)
	}
	out := make([]booking.Booking, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toBooking())
	}
	return out, nil
}

func (s *SQLStore) CreateFeedback(ctx context.Context, f booking.Feedback) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.get(ctx, tx, f.BookingID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO feedback (`+feedbackColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
			f.ID, f.BookingID, f.Stars, f.Comment, string(f.ModerationState), f.CreatedAt.UTC())
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: booking %s", booking.ErrFeedbackExists, f.BookingID)
		}
		if err != nil {
			s.logFailure(ctx, "feedback.insert", err, slog.String("booking_id", f.BookingID))
			return fmt.Errorf("storage: insert feedback: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetFeedback(ctx context.Context, id string) (booking.Feedback, error) {
	return s.getFeedback(ctx, s.db, `id = ?`, id)
}

func (s *SQLStore) FeedbackForBooking(ctx context.Context, bookingID string) (booking.Feedback, error) {
	return s.getFeedback(ctx, s.db, `booking_id = ?`, bookingID)
}

func (s *SQLStore) getFeedback(ctx context.Context, q sqlx.QueryerContext, cond string, arg string) (booking.Feedback, error) {
	var row feedbackRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(`SELECT `+feedbackColumns+` FROM feedback WHERE `+cond), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Feedback{}, fmt.Errorf("%w: feedback %s", booking.ErrNotFound, arg)
	}
	if err != nil {
		return booking.Feedback{}, fmt.Errorf("storage: get feedback: %w", err)
	}
	return row.toFeedback(), nil
}

func (s *SQLStore) UpdateModeration(ctx context.Context, id string, from, to booking.ModerationState) (booking.Feedback, error) {
	var out booking.Feedback
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE feedback SET moderation_state = ? WHERE id = ? AND moderation_state = ?`),
			string(to), id, string(from))
		if err != nil {
			return fmt.Errorf("storage: update moderation: %w", err)
		}
		current, err := s.getFeedback(ctx, tx, `id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: feedback %s is %s", booking.ErrStatusChanged, id, current.ModerationState)
		}
		out = current
		return nil
	})
	return out, err
}

func (s *SQLStore) ListFeedback(ctx context.Context, state booking.ModerationState) ([]booking.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback`
	var args []any
	if state != "" {
		query += ` WHERE moderation_state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at, id`
	var rows []feedbackRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("storage: list feedback: %w", err)
	}
	out := make([]booking.Feedback, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toFeedback())
	}
	return out, nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func (s *SQLStore) logFailure(ctx context.Context, event string, err error, attrs ...slog.Attr) {
	attrs = append(attrs,
		slog.String("driver", s.db.DriverName()),
		slog.String("err", err.Error()),
	)
	logger.Error(ctx, componentStore, event, attrs...)
}

// isUniqueViolation recognises unique constraint failures from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}
