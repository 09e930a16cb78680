package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/m3rciful/vocalbot/internal/availability"
	"github.com/m3rciful/vocalbot/internal/booking"
	"github.com/m3rciful/vocalbot/internal/booking/bookingtest"
	"github.com/m3rciful/vocalbot/internal/storage"
)

var (
	lessonDay = civil.Date{Year: 2026, Month: time.October, Day: 20}
	// lessonStart is 15:00 UTC on lessonDay.
	lessonStart = time.Date(2026, time.October, 20, 15, 0, 0, 0, time.UTC)
)

type harness struct {
	sched *Scheduler
	store booking.Store
	// base is the unwrapped store used for seeding and inspection.
	base     booking.Store
	notifier *bookingtest.Notifier
	clock    *bookingtest.Clock
}

func newHarness(t *testing.T, now time.Time, wrap func(booking.Store) booking.Store) *harness {
	t.Helper()
	return newHarnessOn(t, now, storage.NewMemoryStore(), wrap)
}

func newHarnessOn(t *testing.T, now time.Time, base booking.Store, wrap func(booking.Store) booking.Store) *harness {
	t.Helper()
	everyDay := []int{0, 1, 2, 3, 4, 5, 6}
	hours := []string{"09:00", "15:00", "16:00", "17:00"}
	catalog, err := availability.NewCatalog([]availability.ProviderConfig{
		{ID: "anna", Weekdays: everyDay, Hours: hours},
		{ID: "boris", Weekdays: everyDay, Hours: hours},
	}, 2, time.UTC)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	h := &harness{
		base:     base,
		notifier: bookingtest.NewNotifier(),
		clock:    bookingtest.NewClock(now),
	}
	h.store = base
	if wrap != nil {
		h.store = wrap(base)
	}
	svc, err := booking.New(booking.Options{
		Catalog:  catalog,
		Store:    h.store,
		Notifier: h.notifier,
		Admins:   booking.StaticAdmins{"admin"},
		Clock:    h.clock,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	h.sched, err = New(Config{}, time.Hour, svc, h.store, nil)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	return h
}

func (h *harness) seed(t *testing.T, id, provider string, date civil.Date, hour string, status booking.Status) {
	t.Helper()
	b := booking.Booking{
		ID:          id,
		ProviderID:  provider,
		Date:        date,
		Hour:        hour,
		RequesterID: "client-" + id,
		DisplayName: "Student",
		Status:      status,
		CreatedAt:   h.clock.Now(),
		UpdatedAt:   h.clock.Now(),
	}
	if err := h.base.Create(context.Background(), b); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func (h *harness) status(t *testing.T, id string) booking.Status {
	t.Helper()
	b, err := h.base.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return b.Status
}

func TestReminderFiresExactlyOnceUnderPerSecondTicks(t *testing.T) {
	h := newHarness(t, lessonStart.Add(-3*time.Hour), nil)
	h.seed(t, "b1", "anna", lessonDay, "15:00", booking.StatusConfirmed)
	ctx := context.Background()

	if r, err := h.sched.Tick(ctx); err != nil || r.Reminded != 0 {
		t.Fatalf("three hours ahead must not remind: %+v %v", r, err)
	}

	// Every second of the last-but-one hour before the lesson.
	h.clock.Set(lessonStart.Add(-2 * time.Hour))
	reminded := 0
	for range 3600 {
		h.clock.Advance(time.Second)
		r, err := h.sched.Tick(ctx)
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		reminded += r.Reminded
	}
	if reminded != 1 {
		t.Fatalf("reminded %d times", reminded)
	}
	if n := h.notifier.Count(booking.KindLessonReminder); n != 1 {
		t.Fatalf("sent %d reminders", n)
	}
	if got := h.status(t, "b1"); got != booking.StatusReminded {
		t.Fatalf("status = %s", got)
	}
}

func TestReminderWindowBounds(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want booking.Status
	}{
		{"exactly at lead", lessonStart.Add(-2 * time.Hour), booking.StatusConfirmed},
		{"inside lead", lessonStart.Add(-2*time.Hour + time.Second), booking.StatusReminded},
		{"one second before start", lessonStart.Add(-time.Second), booking.StatusReminded},
		{"at start", lessonStart, booking.StatusConfirmed},
		{"after start", lessonStart.Add(time.Minute), booking.StatusConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.now, nil)
			h.seed(t, "b1", "anna", lessonDay, "15:00", booking.StatusConfirmed)
			if _, err := h.sched.Tick(context.Background()); err != nil {
				t.Fatalf("tick: %v", err)
			}
			if got := h.status(t, "b1"); got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFeedbackPromptWindow(t *testing.T) {
	lessonEnd := lessonStart.Add(time.Hour)
	tests := []struct {
		name string
		now  time.Time
		want booking.Status
	}{
		{"lesson running", lessonEnd.Add(-time.Second), booking.StatusReminded},
		{"lesson just ended", lessonEnd, booking.StatusFeedbackPending},
		{"inside window", lessonEnd.Add(time.Hour), booking.StatusFeedbackPending},
		{"window closed", lessonEnd.Add(2 * time.Hour), booking.StatusReminded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.now, nil)
			h.seed(t, "b1", "anna", lessonDay, "15:00", booking.StatusReminded)
			r, err := h.sched.Tick(context.Background())
			if err != nil {
				t.Fatalf("tick: %v", err)
			}
			if got := h.status(t, "b1"); got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
			if tt.want == booking.StatusFeedbackPending {
				if r.Prompted != 1 || h.notifier.Count(booking.KindFeedbackRequest) != 1 {
					t.Fatalf("expected one prompt, report %+v", r)
				}
			}
		})
	}
}

func TestTickRerunIsNoop(t *testing.T) {
	h := newHarness(t, lessonStart.Add(-time.Hour), nil)
	h.seed(t, "b1", "anna", lessonDay, "15:00", booking.StatusConfirmed)
	h.seed(t, "old", "anna", lessonDay.AddDays(-20), "15:00", booking.StatusFeedbackPending)
	ctx := context.Background()

	first, err := h.sched.Tick(ctx)
	if err != nil || first.Reminded != 1 || first.Purged != 1 {
		t.Fatalf("first tick: %+v %v", first, err)
	}
	sent := len(h.notifier.Messages())
	second, err := h.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if second.Reminded+second.Prompted+second.Purged+second.Failed != 0 {
		t.Fatalf("second tick changed state: %+v", second)
	}
	if len(h.notifier.Messages()) != sent {
		t.Fatal("second tick sent notifications")
	}
}

func TestCleanupRetentionBoundary(t *testing.T) {
	now := time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)
	today := civil.DateOf(now)
	h := newHarness(t, now, nil)
	ctx := context.Background()

	h.seed(t, "boundary", "anna", today.AddDays(-14), "15:00", booking.StatusFeedbackPending)
	h.seed(t, "expired", "anna", today.AddDays(-15), "15:00", booking.StatusFeedbackPending)
	h.seed(t, "cancelled", "anna", today.AddDays(-30), "16:00", booking.StatusCancelled)
	h.seed(t, "ghost", "removed-provider", today.AddDays(-15), "15:00", booking.StatusConfirmed)
	h.seed(t, "upcoming", "anna", today.AddDays(1), "15:00", booking.StatusPending)
	err := h.base.CreateFeedback(ctx, booking.Feedback{
		ID: "f1", BookingID: "expired", Stars: 4, ModerationState: booking.ModerationPendingReview,
	})
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}

	r, err := h.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if r.Purged != 3 {
		t.Fatalf("purged %d, want 3", r.Purged)
	}
	for _, id := range []string{"expired", "cancelled", "ghost"} {
		if _, err := h.base.Get(ctx, id); !errors.Is(err, booking.ErrNotFound) {
			t.Fatalf("%s must be deleted, got %v", id, err)
		}
	}
	for _, id := range []string{"boundary", "upcoming"} {
		if _, err := h.base.Get(ctx, id); err != nil {
			t.Fatalf("%s must be retained: %v", id, err)
		}
	}
	if _, err := h.base.GetFeedback(ctx, "f1"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("feedback must be deleted with its booking, got %v", err)
	}
}

type flakyStore struct {
	booking.Store
	failID string
}

func (f flakyStore) UpdateStatus(ctx context.Context, id string, from, to booking.Status, by booking.Role, at time.Time) (booking.Booking, error) {
	if id == f.failID {
		return booking.Booking{}, errors.New("disk full")
	}
	return f.Store.UpdateStatus(ctx, id, from, to, by, at)
}

func TestTickIsolatesPerBookingFailures(t *testing.T) {
	h := newHarness(t, lessonStart.Add(-30*time.Minute), func(s booking.Store) booking.Store {
		return flakyStore{Store: s, failID: "broken"}
	})
	h.seed(t, "broken", "anna", lessonDay, "15:00", booking.StatusConfirmed)
	h.seed(t, "quiet", "anna", lessonDay, "16:00", booking.StatusConfirmed)
	h.seed(t, "ok", "boris", lessonDay, "15:00", booking.StatusConfirmed)
	h.notifier.Fail("client-quiet", errors.New("blocked by user"))

	r, err := h.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if r.Failed != 1 || r.Reminded != 2 {
		t.Fatalf("report = %+v", r)
	}
	if got := h.status(t, "broken"); got != booking.StatusConfirmed {
		t.Fatalf("broken status = %s", got)
	}
	for _, id := range []string{"quiet", "ok"} {
		if got := h.status(t, id); got != booking.StatusReminded {
			t.Fatalf("%s status = %s", id, got)
		}
	}
}

func TestTickSkipsWhenAlreadyRunning(t *testing.T) {
	h := newHarness(t, lessonStart.Add(-time.Hour), nil)
	h.sched.running.Store(true)
	if _, err := h.sched.Tick(context.Background()); !errors.Is(err, ErrTickInProgress) {
		t.Fatalf("expected ErrTickInProgress, got %v", err)
	}
	h.sched.running.Store(false)
	if _, err := h.sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSweeper) Sweep(time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0
}

func TestStartRunsImmediateTick(t *testing.T) {
	h := newHarness(t, lessonStart.Add(-time.Hour), nil)
	h.seed(t, "b1", "anna", lessonDay, "15:00", booking.StatusConfirmed)
	h.sched.sessions = &countingSweeper{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.sched.Start(ctx); err == nil {
		t.Fatal("second start must fail")
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.notifier.Count(booking.KindLessonReminder) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("immediate tick did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	h.sched.Stop(stopCtx)
}

func TestConfigNormalize(t *testing.T) {
	var cfg Config
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.TickInterval != time.Hour || cfg.ReminderLead != 2*time.Hour || cfg.FeedbackWindow != 2*time.Hour || cfg.RetentionDays != 14 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	bad := Config{TickInterval: time.Millisecond}
	if err := bad.Normalize(); err == nil {
		t.Fatal("expected error for sub-second tick")
	}
}
