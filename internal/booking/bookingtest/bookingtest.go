// Package bookingtest provides fakes for exercising the booking engine in tests.
package bookingtest

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/m3rciful/vocalbot/internal/booking"
)

// Message is a notification captured by Notifier.
type Message struct {
	Recipient string
	Kind      booking.MessageKind
	Params    map[string]string
}

// Notifier records every Notify call. Fail makes calls for a recipient return an error.
type Notifier struct {
	mu       sync.Mutex
	messages []Message
	failFor  map[string]error
}

// NewNotifier returns an empty recording notifier.
func NewNotifier() *Notifier {
	return &Notifier{failFor: make(map[string]error)}
}

func (n *Notifier) Notify(_ context.Context, recipient string, kind booking.MessageKind, params map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, Message{Recipient: recipient, Kind: kind, Params: maps.Clone(params)})
	return n.failFor[recipient]
}

// Fail makes deliveries to recipient fail with err. A nil err clears the failure.
func (n *Notifier) Fail(recipient string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.failFor, recipient)
		return
	}
	n.failFor[recipient] = err
}

// Messages returns a copy of the recorded messages.
func (n *Notifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.messages...)
}

// Count returns how many messages of kind were recorded. An empty kind counts all.
func (n *Notifier) Count(kind booking.MessageKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.messages {
		if kind == "" || m.Kind == kind {
			c++
		}
	}
	return c
}

// Reset drops recorded messages.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = nil
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
