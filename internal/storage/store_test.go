package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/m3rciful/vocalbot/core/database"
	"github.com/m3rciful/vocalbot/internal/booking"
)

var (
	lessonDay = civil.Date{Year: 2026, Month: time.October, Day: 20}
	baseTime  = time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
)

type storeFactory func(t *testing.T) booking.Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) booking.Store { return NewMemoryStore() },
		"sqlite": newSQLiteStore,
	}
}

func newSQLiteStore(t *testing.T) booking.Store {
	t.Helper()
	cfg := database.Config{
		Driver:        database.DriverSQLite,
		Path:          filepath.Join(t.TempDir(), "bookings.db"),
		MigrationsDir: filepath.Join("..", "..", "migrations", "sqlite"),
	}
	if err := database.RunMigrations(cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db)
}

func newBooking(id, hour string, offset time.Duration) booking.Booking {
	return booking.Booking{
		ID:          id,
		ProviderID:  "anna",
		Date:        lessonDay,
		Hour:        hour,
		RequesterID: "user-" + id,
		DisplayName: "Student " + id,
		Status:      booking.StatusPending,
		CreatedAt:   baseTime.Add(offset),
		UpdatedAt:   baseTime.Add(offset),
	}
}

func TestStoreSlotUniqueness(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			if err := s.Create(ctx, newBooking("b1", "15:00", 0)); err != nil {
				t.Fatalf("create: %v", err)
			}
			err := s.Create(ctx, newBooking("b2", "15:00", time.Minute))
			if !errors.Is(err, booking.ErrSlotTaken) {
				t.Fatalf("expected ErrSlotTaken, got %v", err)
			}
			if _, err := s.UpdateStatus(ctx, "b1", booking.StatusPending, booking.StatusRejected, "", baseTime); err != nil {
				t.Fatalf("reject: %v", err)
			}
			if err := s.Create(ctx, newBooking("b3", "15:00", 2*time.Minute)); err != nil {
				t.Fatalf("slot must be free after rejection: %v", err)
			}
			if err := s.Create(ctx, newBooking("b4", "16:00", 3*time.Minute)); err != nil {
				t.Fatalf("other hour: %v", err)
			}
		})
	}
}

func TestStoreConcurrentCreate(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			const workers = 16
			var (
				wg      sync.WaitGroup
				created atomic.Int32
				taken   atomic.Int32
			)
			for i := range workers {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := s.Create(ctx, newBooking(fmt.Sprintf("c%d", i), "17:00", time.Duration(i)*time.Second))
					switch {
					case err == nil:
						created.Add(1)
					case errors.Is(err, booking.ErrSlotTaken):
						taken.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()
			if created.Load() != 1 || taken.Load() != workers-1 {
				t.Fatalf("created=%d taken=%d", created.Load(), taken.Load())
			}
		})
	}
}

func TestStoreUpdateStatusCAS(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			if err := s.Create(ctx, newBooking("b1", "15:00", 0)); err != nil {
				t.Fatalf("create: %v", err)
			}

			at := baseTime.Add(time.Hour)
			got, err := s.UpdateStatus(ctx, "b1", booking.StatusPending, booking.StatusCancelled, booking.RoleClient, at)
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if got.Status != booking.StatusCancelled || got.CancelledBy != booking.RoleClient {
				t.Fatalf("unexpected booking after update: %+v", got)
			}
			if !got.UpdatedAt.Equal(at) {
				t.Fatalf("updated_at = %v, want %v", got.UpdatedAt, at)
			}

			_, err = s.UpdateStatus(ctx, "b1", booking.StatusPending, booking.StatusConfirmed, "", at)
			if !errors.Is(err, booking.ErrStatusChanged) {
				t.Fatalf("expected ErrStatusChanged, got %v", err)
			}
			_, err = s.UpdateStatus(ctx, "missing", booking.StatusPending, booking.StatusConfirmed, "", at)
			if !errors.Is(err, booking.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := s.Get(ctx, "missing"); !errors.Is(err, booking.ErrNotFound) {
				t.Fatalf("expected ErrNotFound from Get, got %v", err)
			}
		})
	}
}

func TestStoreListFilters(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			later := newBooking("late", "09:00", 0)
			later.Date = lessonDay.AddDays(3)
			later.RequesterID = "alice"
			early := newBooking("early", "18:00", time.Minute)
			early.RequesterID = "alice"
			morning := newBooking("morning", "10:00", 2*time.Minute)
			other := newBooking("other", "11:00", 3*time.Minute)
			other.ProviderID = "boris"
			for _, b := range []booking.Booking{later, early, morning, other} {
				if err := s.Create(ctx, b); err != nil {
					t.Fatalf("create %s: %v", b.ID, err)
				}
			}
			if _, err := s.UpdateStatus(ctx, "morning", booking.StatusPending, booking.StatusCancelled, booking.RoleAdmin, baseTime); err != nil {
				t.Fatalf("cancel: %v", err)
			}

			tests := []struct {
				name   string
				filter booking.Filter
				want   []string
			}{
				{"all ordered by date and hour", booking.Filter{}, []string{"morning", "other", "early", "late"}},
				{"requester", booking.Filter{RequesterID: "alice"}, []string{"early", "late"}},
				{"provider", booking.Filter{ProviderID: "boris"}, []string{"other"}},
				{"active only", booking.Filter{ProviderID: "anna", ActiveOnly: true}, []string{"early", "late"}},
				{"date range", booking.Filter{From: lessonDay, To: lessonDay}, []string{"morning", "other", "early"}},
				{"from", booking.Filter{From: lessonDay.AddDays(1)}, []string{"late"}},
				{"statuses", booking.Filter{Statuses: []booking.Status{booking.StatusCancelled, booking.StatusConfirmed}}, []string{"morning"}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := s.List(ctx, tt.filter)
					if err != nil {
						t.Fatalf("list: %v", err)
					}
					ids := make([]string, len(got))
					for i, b := range got {
						ids[i] = b.ID
					}
					if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
						t.Fatalf("got %v, want %v", ids, tt.want)
					}
				})
			}

			got, err := s.Get(ctx, "late")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Date != later.Date || got.Hour != "09:00" || got.DisplayName != later.DisplayName {
				t.Fatalf("round trip mismatch: %+v", got)
			}
		})
	}
}

func TestStoreFeedback(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			b := newBooking("b1", "15:00", 0)
			b.Status = booking.StatusFeedbackPending
			if err := s.Create(ctx, b); err != nil {
				t.Fatalf("create: %v", err)
			}

			f := booking.Feedback{
				ID:              "f1",
				BookingID:       "b1",
				Stars:           3,
				Comment:         "ok",
				ModerationState: booking.ModerationPendingReview,
				CreatedAt:       baseTime,
			}
			if err := s.CreateFeedback(ctx, f); err != nil {
				t.Fatalf("create feedback: %v", err)
			}
			dup := f
			dup.ID = "f2"
			if err := s.CreateFeedback(ctx, dup); !errors.Is(err, booking.ErrFeedbackExists) {
				t.Fatalf("expected ErrFeedbackExists, got %v", err)
			}
			orphan := f
			orphan.ID = "f3"
			orphan.BookingID = "missing"
			if err := s.CreateFeedback(ctx, orphan); !errors.Is(err, booking.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			pending, err := s.ListFeedback(ctx, booking.ModerationPendingReview)
			if err != nil || len(pending) != 1 {
				t.Fatalf("pending list: %v %v", pending, err)
			}
			approved, err := s.UpdateModeration(ctx, "f1", booking.ModerationPendingReview, booking.ModerationApproved)
			if err != nil || approved.ModerationState != booking.ModerationApproved {
				t.Fatalf("approve: %+v %v", approved, err)
			}
			if _, err := s.UpdateModeration(ctx, "f1", booking.ModerationPendingReview, booking.ModerationApproved); !errors.Is(err, booking.ErrStatusChanged) {
				t.Fatalf("expected ErrStatusChanged, got %v", err)
			}
			got, err := s.FeedbackForBooking(ctx, "b1")
			if err != nil || got.ID != "f1" || got.Stars != 3 || got.Comment != "ok" {
				t.Fatalf("feedback for booking: %+v %v", got, err)
			}

			if err := s.Delete(ctx, "b1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := s.GetFeedback(ctx, "f1"); !errors.Is(err, booking.ErrNotFound) {
				t.Fatalf("feedback must be removed with its booking, got %v", err)
			}
			if err := s.Delete(ctx, "b1"); !errors.Is(err, booking.ErrNotFound) {
				t.Fatalf("expected ErrNotFound on second delete, got %v", err)
			}
		})
	}
}
