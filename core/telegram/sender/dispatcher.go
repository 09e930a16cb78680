package sender

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/vocalbot/core/logger"
	"github.com/m3rciful/vocalbot/core/telegram/netutil"
	"golang.org/x/time/rate"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job, retries included.
	MaxDuration time.Duration
	// PerSecond caps outbound calls across all workers; 0 disables the cap.
	PerSecond float64
	Burst     int
}

func (o *Options) normalize() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 30 * time.Second
	}
	o.Burst = max(o.Burst, 1)
}

// Stats counts finished jobs since the dispatcher started.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Retried uint64
}

// LogValue groups the counters under one attribute.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("sent", s.Sent),
		slog.Uint64("failed", s.Failed),
		slog.Uint64("retried", s.Retried),
	)
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher runs outbound Bot API calls on a fixed worker pool so handlers and
// background jobs never wait for Telegram. Failed calls are retried while the
// error is transient; flood-control answers are honoured.
type Dispatcher struct {
	opts    Options
	limiter *rate.Limiter
	jobs    chan job
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	sent, failed, retried atomic.Uint64
}

// NewDispatcher starts opts.Workers workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts.normalize()
	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	if opts.PerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.PerSecond), opts.Burst)
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go d.worker()
	}
	return d
}

// Enqueue schedules run without blocking. run may be called more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		logger.Warn(ctx, component, "send.drop",
			slog.String("action", action),
			slog.Int("queue", d.opts.QueueSize),
		)
		return ErrQueueFull
	}
}

// Stats returns a snapshot of the job counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Retried: d.retried.Load()}
}

// Close rejects new jobs and waits until queued ones are processed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handle(j)
	}
}

func (d *Dispatcher) handle(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if d.limiter != nil {
			if werr := d.limiter.Wait(ctx); werr != nil {
				err = werr
				break
			}
		}
		if err = j.run(); err == nil {
			d.sent.Add(1)
			logger.Debug(j.ctx, component, "send.ok",
				slog.String("action", j.action),
				slog.String("endpoint", j.endpoint),
				slog.Int("attempt", attempt),
				slog.Duration("duration", logger.Took(start)),
			)
			return
		}
		if attempt == attempts || !netutil.ShouldRetry(err) {
			break
		}
		delay := d.opts.RetryBackoff * time.Duration(attempt)
		if wait, ok := netutil.RetryAfter(err); ok {
			delay = wait
		}
		d.retried.Add(1)
		logger.Debug(j.ctx, component, "send.retry",
			slog.String("action", j.action),
			slog.Int("attempt", attempt),
			slog.String("error_kind", netutil.Classify(err)),
			slog.Duration("backoff", delay),
		)
		if !sleep(ctx, delay) {
			err = ctx.Err()
			break
		}
	}

	d.failed.Add(1)
	logger.Error(j.ctx, component, "send.fail",
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
		slog.String("err", redactToken(err)),
		slog.String("error_kind", netutil.Classify(err)),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
	)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// redactToken keeps bot tokens embedded in request URLs out of logs.
func redactToken(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
