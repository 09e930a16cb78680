// Package scheduler runs the periodic lifecycle tick: lesson reminders,
// feedback prompts and cleanup of old bookings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/m3rciful/vocalbot/core/logger"
	"github.com/m3rciful/vocalbot/internal/availability"
	"github.com/m3rciful/vocalbot/internal/booking"
)

const component = "scheduler"

// ErrTickInProgress is returned when Tick is called while another tick runs.
var ErrTickInProgress = errors.New("scheduler: tick already in progress")

// Config holds the tick timing rules.
type Config struct {
	TickInterval   time.Duration `yaml:"tick_interval" envconfig:"SCHEDULER_TICK_INTERVAL"`
	ReminderLead   time.Duration `yaml:"reminder_lead" envconfig:"SCHEDULER_REMINDER_LEAD"`
	FeedbackWindow time.Duration `yaml:"feedback_window" envconfig:"SCHEDULER_FEEDBACK_WINDOW"`
	RetentionDays  int           `yaml:"retention_days" envconfig:"SCHEDULER_RETENTION_DAYS"`
	// SessionSweep controls how often expired dialog sessions are dropped.
	SessionSweep time.Duration `yaml:"session_sweep" envconfig:"SCHEDULER_SESSION_SWEEP"`
}

// Normalize fills defaults and validates the configuration.
func (c *Config) Normalize() error {
	if c.TickInterval == 0 {
		c.TickInterval = time.Hour
	}
	if c.ReminderLead == 0 {
		c.ReminderLead = 2 * time.Hour
	}
	if c.FeedbackWindow == 0 {
		c.FeedbackWindow = 2 * time.Hour
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 14
	}
	if c.SessionSweep == 0 {
		c.SessionSweep = time.Minute
	}
	switch {
	case c.TickInterval < time.Second:
		return fmt.Errorf("scheduler.tick_interval must be >= 1s, got %s", c.TickInterval)
	case c.ReminderLead < 0:
		return fmt.Errorf("scheduler.reminder_lead must be positive, got %s", c.ReminderLead)
	case c.FeedbackWindow < 0:
		return fmt.Errorf("scheduler.feedback_window must be positive, got %s", c.FeedbackWindow)
	case c.RetentionDays < 0:
		return fmt.Errorf("scheduler.retention_days must be >= 0, got %d", c.RetentionDays)
	case c.SessionSweep < time.Second:
		return fmt.Errorf("scheduler.session_sweep must be >= 1s, got %s", c.SessionSweep)
	}
	return nil
}

// Sweeper drops expired dialog sessions.
type Sweeper interface {
	Sweep(now time.Time) int
}

// TickReport summarizes one tick.
type TickReport struct {
	Scanned  int
	Reminded int
	Prompted int
	Purged   int
	Failed   int
	Took     time.Duration
}

// Scheduler evaluates persisted bookings against the clock.
type Scheduler struct {
	cfg            Config
	lessonDuration time.Duration
	svc            *booking.Service
	store          booking.Store
	sessions       Sweeper
	clock          booking.Clock

	running atomic.Bool
	cron    *cron.Cron
}

// New builds a scheduler. sessions may be nil.
func New(cfg Config, lessonDuration time.Duration, svc *booking.Service, store booking.Store, sessions Sweeper) (*Scheduler, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if svc == nil || store == nil {
		return nil, errors.New("scheduler: service and store are required")
	}
	if lessonDuration <= 0 {
		return nil, fmt.Errorf("scheduler: lesson duration must be positive, got %s", lessonDuration)
	}
	return &Scheduler{
		cfg:            cfg,
		lessonDuration: lessonDuration,
		svc:            svc,
		store:          store,
		sessions:       sessions,
		clock:          svc.Clock(),
	}, nil
}

// Start schedules the tick and the session sweep. Jobs never overlap with themselves.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron != nil {
		return errors.New("scheduler: already started")
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := c.AddFunc("@every "+s.cfg.TickInterval.String(), func() {
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
			logger.Error(ctx, component, "tick.fail", slog.String("err", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("scheduler: add tick job: %w", err)
	}
	if s.sessions != nil {
		if _, err := c.AddFunc("@every "+s.cfg.SessionSweep.String(), func() {
			if n := s.sessions.Sweep(s.clock.Now()); n > 0 {
				logger.Debug(ctx, component, "sessions.sweep", slog.Int("purged", n))
			}
		}); err != nil {
			return fmt.Errorf("scheduler: add sweep job: %w", err)
		}
	}
	c.Start()
	s.cron = c
	logger.Info(ctx, component, "start",
		slog.Duration("tick_interval", s.cfg.TickInterval),
		slog.Duration("reminder_lead", s.cfg.ReminderLead),
		slog.Duration("feedback_window", s.cfg.FeedbackWindow),
		slog.Int("retention_days", s.cfg.RetentionDays),
	)
	// Run once right away so a restart catches up without waiting a full interval.
	go func() {
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
			logger.Error(ctx, component, "tick.fail", slog.String("err", err.Error()))
		}
	}()
	return nil
}

// Stop halts scheduling and waits for running jobs or ctx expiry.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn(ctx, component, "stop.timeout")
	}
	s.cron = nil
}

// Tick runs one evaluation pass over the store.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return TickReport{}, ErrTickInProgress
	}
	defer s.running.Store(false)
	ctx = logger.WithRun(ctx, "scheduler.tick", uuid.NewString())

	start := time.Now()
	now := s.clock.Now()
	var report TickReport

	snapshot, err := s.store.List(ctx, booking.Filter{
		Statuses: []booking.Status{booking.StatusConfirmed, booking.StatusReminded},
	})
	if err != nil {
		return report, fmt.Errorf("scheduler: snapshot: %w", err)
	}
	report.Scanned = len(snapshot)
	for _, b := range snapshot {
		s.advance(ctx, b, now, &report)
	}
	if err := s.cleanup(ctx, now, &report); err != nil {
		return report, err
	}

	report.Took = logger.Took(start)
	attrs := []slog.Attr{
		slog.Int("scanned", report.Scanned),
		slog.Int("reminded", report.Reminded),
		slog.Int("prompted", report.Prompted),
		slog.Int("purged", report.Purged),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Took),
	}
	if report.Reminded+report.Prompted+report.Purged+report.Failed > 0 {
		logger.Info(ctx, component, "tick", attrs...)
	} else {
		logger.Debug(ctx, component, "tick", attrs...)
	}
	return report, nil
}

func (s *Scheduler) advance(ctx context.Context, b booking.Booking, now time.Time, report *TickReport) {
	start, err := s.svc.LessonStart(b)
	if err != nil {
		report.Failed++
		logger.Warn(ctx, component, "booking.start.fail",
			slog.String("booking_id", b.ID),
			slog.String("provider_id", b.ProviderID),
			slog.String("err", err.Error()),
		)
		return
	}

	var target booking.Status
	switch b.Status {
	case booking.StatusConfirmed:
		until := start.Sub(now)
		if until <= 0 || until >= s.cfg.ReminderLead {
			return
		}
		target = booking.StatusReminded
	case booking.StatusReminded:
		since := now.Sub(start.Add(s.lessonDuration))
		if since < 0 || since >= s.cfg.FeedbackWindow {
			return
		}
		target = booking.StatusFeedbackPending
	default:
		return
	}

	_, err = s.svc.Transition(ctx, b.ID, target, booking.SchedulerActor)
	switch {
	case err == nil:
		if target == booking.StatusReminded {
			report.Reminded++
		} else {
			report.Prompted++
		}
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, booking.ErrInvalidTransition):
		// Changed since the snapshot, typically cancelled by the requester.
		logger.Debug(ctx, component, "booking.skip",
			slog.String("booking_id", b.ID),
			slog.String("to_status", string(target)),
			slog.String("err", err.Error()),
		)
	default:
		report.Failed++
		logger.Error(ctx, component, "booking.transition.fail",
			slog.String("booking_id", b.ID),
			slog.String("to_status", string(target)),
			slog.String("err", err.Error()),
		)
	}
}

// cleanup removes bookings whose lesson date is more than RetentionDays
// before the provider's current date.
func (s *Scheduler) cleanup(ctx context.Context, now time.Time, report *TickReport) error {
	// No timezone is more than one calendar day ahead of UTC.
	bound := civil.DateOf(now.UTC()).AddDays(-s.cfg.RetentionDays)
	candidates, err := s.store.List(ctx, booking.Filter{To: bound})
	if err != nil {
		return fmt.Errorf("scheduler: cleanup candidates: %w", err)
	}
	catalog := s.svc.Catalog()
	for _, b := range candidates {
		today := civil.DateOf(now.UTC())
		if p, err := catalog.Provider(b.ProviderID); err == nil {
			today = availability.Today(p, now)
		}
		if !b.Date.Before(today.AddDays(-s.cfg.RetentionDays)) {
			continue
		}
		err := s.svc.Purge(ctx, b.ID, booking.SchedulerActor)
		switch {
		case err == nil:
			report.Purged++
		case errors.Is(err, booking.ErrNotFound):
		default:
			report.Failed++
			logger.Error(ctx, component, "booking.purge.fail",
				slog.String("booking_id", b.ID),
				slog.String("err", err.Error()),
			)
		}
	}
	return nil
}

// cronLogger forwards robfig/cron diagnostics to the scheduler component.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug(context.Background(), component, "cron."+msg, kvAttrs(keysAndValues)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	attrs := append(kvAttrs(keysAndValues), slog.String("err", err.Error()))
	logger.Error(context.Background(), component, "cron."+msg, attrs...)
}

func kvAttrs(kv []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return attrs
}
