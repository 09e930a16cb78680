package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/m3rciful/vocalbot/core/logger"
	"github.com/m3rciful/vocalbot/internal/availability"
)

const (
	componentBooking  = "service.booking"
	componentFeedback = "service.feedback"

	maxNameRunes    = 64
	maxCommentRunes = 1000
)

// Options configures a Service.
type Options struct {
	Catalog  *availability.Catalog
	Store    Store
	Notifier Notifier
	Admins   AdminDirectory
	Clock    Clock
	// MaxActivePerUser caps upcoming bookings per requester. Zero disables the cap.
	MaxActivePerUser int
	// NewID generates booking and feedback ids. Defaults to random UUIDs.
	NewID func() string
}

// Service is the booking lifecycle engine.
type Service struct {
	catalog   *availability.Catalog
	store     Store
	notifier  Notifier
	admins    AdminDirectory
	clock     Clock
	maxActive int
	newID     func() string
	locks     *keyedMutex
}

// New validates opts and builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Catalog == nil {
		return nil, errors.New("booking: catalog is required")
	}
	if opts.Store == nil {
		return nil, errors.New("booking: store is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("booking: notifier is required")
	}
	if opts.MaxActivePerUser < 0 {
		return nil, fmt.Errorf("booking: max active per user must be >= 0, got %d", opts.MaxActivePerUser)
	}
	s := &Service{
		catalog:   opts.Catalog,
		store:     opts.Store,
		notifier:  opts.Notifier,
		admins:    opts.Admins,
		clock:     opts.Clock,
		maxActive: opts.MaxActivePerUser,
		newID:     opts.NewID,
		locks:     newKeyedMutex(),
	}
	if s.admins == nil {
		s.admins = StaticAdmins(nil)
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Catalog exposes the availability catalog used by the service.
func (s *Service) Catalog() *availability.Catalog { return s.catalog }

// Clock exposes the service clock.
func (s *Service) Clock() Clock { return s.clock }

// Providers lists the configured providers.
func (s *Service) Providers() []availability.Provider { return s.catalog.Providers() }

// Get loads a booking by id.
func (s *Service) Get(ctx context.Context, id string) (Booking, error) {
	return s.store.Get(ctx, id)
}

// ListBookingsFor returns every booking of the requester, oldest lesson first.
func (s *Service) ListBookingsFor(ctx context.Context, requesterID string) ([]Booking, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, fmt.Errorf("%w: requester id is empty", ErrInvalidRequest)
	}
	return s.store.List(ctx, Filter{RequesterID: requesterID})
}

// ListAllBookings returns bookings matching f. Only admins may list bookings of other requesters.
func (s *Service) ListAllBookings(ctx context.Context, actor Actor, f Filter) ([]Booking, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.List(ctx, f)
}

// ListAvailability returns the free hours of each candidate date in the given week.
func (s *Service) ListAvailability(ctx context.Context, providerID string, weekOffset int) ([]DayAvailability, error) {
	p, err := s.catalog.Provider(providerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	now := s.clock.Now()
	dates, err := s.catalog.Week(p, weekOffset, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	if len(dates) == 0 {
		return nil, nil
	}
	occupied, err := s.store.List(ctx, Filter{
		ProviderID: p.ID,
		From:       dates[0],
		To:         dates[len(dates)-1],
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	taken := make(map[SlotKey]struct{}, len(occupied))
	for _, b := range occupied {
		taken[b.Key()] = struct{}{}
	}
	out := make([]DayAvailability, 0, len(dates))
	for _, d := range dates {
		day := DayAvailability{Date: d}
		for _, h := range s.catalog.OpenHours(p, d, now) {
			if _, busy := taken[SlotKey{ProviderID: p.ID, Date: d, Hour: h}]; busy {
				continue
			}
			day.Hours = append(day.Hours, h)
		}
		out = append(out, day)
	}
	return out, nil
}

// Transition moves a booking to target on behalf of actor and notifies the requester.
func (s *Service) Transition(ctx context.Context, id string, target Status, actor Actor) (Booking, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	unlock := s.locks.Lock(current.Key().String())
	updated, err := s.transitionLocked(ctx, id, target, actor)
	unlock()
	if err != nil {
		logger.Debug(ctx, componentBooking, "booking.transition.denied",
			slog.String("booking_id", id),
			slog.String("to_status", string(target)),
			slog.String("actor", string(actor.Role)),
			slog.String("err", err.Error()),
		)
		return Booking{}, err
	}
	logger.Info(ctx, componentBooking, "booking.transition",
		slog.String("booking_id", id),
		slog.String("from_status", string(current.Status)),
		slog.String("to_status", string(updated.Status)),
		slog.String("actor", string(actor.Role)),
	)
	s.notifyTransition(ctx, updated)
	return updated, nil
}

func (s *Service) transitionLocked(ctx context.Context, id string, target Status, actor Actor) (Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if err := s.authorize(actor, b); err != nil {
		return Booking{}, err
	}
	if actor.Role == RoleClient && s.Started(b) {
		return Booking{}, fmt.Errorf("%w: lesson has already started", ErrForbidden)
	}
	if err := CheckTransition(b.Status, target, actor.Role); err != nil {
		return Booking{}, err
	}
	var cancelledBy Role
	if target == StatusCancelled {
		cancelledBy = actor.Role
	}
	updated, err := s.store.UpdateStatus(ctx, id, b.Status, target, cancelledBy, s.clock.Now())
	if errors.Is(err, ErrStatusChanged) {
		return Booking{}, &TransitionError{From: b.Status, To: target}
	}
	return updated, err
}

// RequestCancellation cancels a booking on behalf of its requester or an admin.
func (s *Service) RequestCancellation(ctx context.Context, id string, actor Actor) (Booking, error) {
	return s.Transition(ctx, id, StatusCancelled, actor)
}

// Decide confirms or rejects a pending booking.
func (s *Service) Decide(ctx context.Context, id string, d Decision, actor Actor) (Booking, error) {
	switch d {
	case DecisionApprove:
		return s.Transition(ctx, id, StatusConfirmed, actor)
	case DecisionReject:
		return s.Transition(ctx, id, StatusRejected, actor)
	default:
		return Booking{}, fmt.Errorf("%w: unknown decision %q", ErrInvalidRequest, d)
	}
}

// authorize checks that actor may act on b at all. Edge-level role checks live in CheckTransition.
func (s *Service) authorize(actor Actor, b Booking) error {
	switch actor.Role {
	case RoleScheduler:
		return nil
	case RoleAdmin:
		return s.requireAdmin(actor)
	case RoleClient:
		if actor.ID == "" || actor.ID != b.RequesterID {
			return fmt.Errorf("%w: booking belongs to another requester", ErrForbidden)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, actor.Role)
	}
}

func (s *Service) requireAdmin(actor Actor) error {
	if actor.Role != RoleAdmin || !s.admins.IsAdmin(actor.ID) {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

func (s *Service) notifyTransition(ctx context.Context, b Booking) {
	var kind MessageKind
	switch b.Status {
	case StatusConfirmed:
		kind = KindBookingConfirmed
	case StatusRejected:
		kind = KindBookingRejected
	case StatusCancelled:
		kind = KindBookingCancelled
	case StatusReminded:
		kind = KindLessonReminder
	case StatusFeedbackPending:
		kind = KindFeedbackRequest
	default:
		return
	}
	s.dispatch(ctx, b.RequesterID, kind, s.bookingParams(b))
}

func (s *Service) notifyAdmins(ctx context.Context, kind MessageKind, params map[string]string) {
	for _, id := range s.admins.AdminIDs() {
		s.dispatch(ctx, id, kind, params)
	}
}

// dispatch delivers one notification. Failures are logged and never undo the committed change.
func (s *Service) dispatch(ctx context.Context, recipient string, kind MessageKind, params map[string]string) {
	if err := s.notifier.Notify(ctx, recipient, kind, params); err != nil {
		derr := &DispatchError{Recipient: recipient, Kind: kind, Err: err}
		logger.Warn(ctx, componentBooking, "notify.fail",
			slog.String("recipient", recipient),
			slog.String("kind", string(kind)),
			slog.String("booking_id", params[ParamBookingID]),
			slog.String("code", derr.Code()),
			slog.String("err", derr.Error()),
		)
	}
}

func (s *Service) bookingParams(b Booking) map[string]string {
	params := map[string]string{
		ParamBookingID:    b.ID,
		ParamProviderID:   b.ProviderID,
		ParamProviderName: b.ProviderID,
		ParamDate:         b.Date.String(),
		ParamHour:         b.Hour,
		ParamName:         b.DisplayName,
		ParamRequesterID:  b.RequesterID,
	}
	if p, err := s.catalog.Provider(b.ProviderID); err == nil {
		params[ParamProviderName] = p.DisplayName()
	}
	if b.CancelledBy != "" {
		params[ParamCancelledBy] = string(b.CancelledBy)
	}
	return params
}

func normalizeText(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// LessonStart returns the absolute start time of the booked lesson.
func (s *Service) LessonStart(b Booking) (time.Time, error) {
	p, err := s.catalog.Provider(b.ProviderID)
	if err != nil {
		return time.Time{}, err
	}
	return startOf(p, b)
}

// Started reports whether the lesson start time has passed. A booking whose
// provider is no longer configured counts as not started.
func (s *Service) Started(b Booking) bool {
	start, err := s.LessonStart(b)
	if err != nil {
		return false
	}
	return !start.After(s.clock.Now())
}

func startOf(p availability.Provider, b Booking) (time.Time, error) {
	return availability.StartOf(p, b.Date, b.Hour)
}

// Purge deletes a booking and its feedback. Only the scheduler may purge.
func (s *Service) Purge(ctx context.Context, id string, actor Actor) error {
	if actor.Role != RoleScheduler {
		return fmt.Errorf("%w: only the scheduler purges bookings", ErrForbidden)
	}
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(b.Key().String())
	defer unlock()
	return s.store.Delete(ctx, id)
}
