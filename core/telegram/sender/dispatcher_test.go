package sender

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestDispatcherRetries(t *testing.T) {
	tests := []struct {
		name        string
		errs        []error
		wantCalls   int32
		wantStats   Stats
		maxDuration time.Duration
	}{
		{
			name:      "transient errors are retried",
			errs:      []error{&net.DNSError{IsTimeout: true}, &tele.Error{Code: 502}},
			wantCalls: 3,
			wantStats: Stats{Sent: 1, Retried: 2},
		},
		{
			name:      "client errors fail at once",
			errs:      []error{&tele.Error{Code: 400, Description: "Bad Request: chat not found"}},
			wantCalls: 1,
			wantStats: Stats{Failed: 1},
		},
		{
			name:      "retries are bounded",
			errs:      []error{&net.DNSError{IsTimeout: true}, &net.DNSError{IsTimeout: true}, &net.DNSError{IsTimeout: true}},
			wantCalls: 3,
			wantStats: Stats{Failed: 1, Retried: 2},
		},
		{
			name:        "flood wait outlives the job deadline",
			errs:        []error{tele.FloodError{RetryAfter: 5}},
			wantCalls:   1,
			wantStats:   Stats{Failed: 1, Retried: 1},
			maxDuration: 50 * time.Millisecond,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(Options{
				Workers:      1,
				MaxRetries:   2,
				RetryBackoff: time.Millisecond,
				MaxDuration:  tt.maxDuration,
			})
			var calls atomic.Int32
			err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
				n := calls.Add(1)
				if int(n) <= len(tt.errs) {
					return tt.errs[n-1]
				}
				return nil
			})
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			d.Close()
			if got := calls.Load(); got != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", got, tt.wantCalls)
			}
			if got := d.Stats(); got != tt.wantStats {
				t.Fatalf("stats = %+v, want %+v", got, tt.wantStats)
			}
		})
	}
}

func TestDispatcherQueueLimits(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	noop := func() error { return nil }

	if err := d.Enqueue(context.Background(), "a", "", func() error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	<-started
	if err := d.Enqueue(context.Background(), "b", "", noop); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if err := d.Enqueue(context.Background(), "c", "", noop); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue c: got %v, want ErrQueueFull", err)
	}
	close(release)
	d.Close()

	if err := d.Enqueue(context.Background(), "d", "", noop); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after close: got %v, want ErrQueueClosed", err)
	}
	if got := d.Stats().Sent; got != 2 {
		t.Fatalf("sent = %d, want 2", got)
	}
	d.Close()
}

func TestRedactToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AA-bb_CC/sendMessage": timeout`)
	got := redactToken(err)
	want := `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout`
	if got != want {
		t.Fatalf("redactToken = %q, want %q", got, want)
	}
}

func TestStatsLogValue(t *testing.T) {
	v := Stats{Sent: 5, Failed: 1, Retried: 2}.LogValue()
	if v.Kind() != slog.KindGroup {
		t.Fatalf("kind = %s, want group", v.Kind())
	}
	got := map[string]uint64{}
	for _, a := range v.Group() {
		got[a.Key] = a.Value.Uint64()
	}
	want := map[string]uint64{"sent": 5, "failed": 1, "retried": 2}
	for k, n := range want {
		if got[k] != n {
			t.Fatalf("%s = %d, want %d (all: %v)", k, got[k], n, got)
		}
	}
}
