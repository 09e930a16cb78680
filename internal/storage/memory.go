// Package storage provides booking.Store implementations: an in-memory store
// for tests and single-process runs, and an SQL store for PostgreSQL and SQLite.
package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/m3rciful/vocalbot/internal/booking"
)

// MemoryStore keeps bookings in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	bookings  map[string]booking.Booking
	feedback  map[string]booking.Feedback
	byBooking map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:  make(map[string]booking.Booking),
		feedback:  make(map[string]booking.Feedback),
		byBooking: make(map[string]string),
	}
}

var _ booking.Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(_ context.Context, b booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bookings[b.ID]; exists {
		return fmt.Errorf("storage: booking %s already exists", b.ID)
	}
	if b.Status.Active() {
		key := b.Key()
		for _, other := range m.bookings {
			if other.Status.Active() && other.Key() == key {
				return fmt.Errorf("%w: %s", booking.ErrSlotTaken, key)
			}
		}
	}
	m.bookings[b.ID] = b
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return booking.Booking{}, fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
	}
	return b, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, from, to booking.Status, cancelledBy booking.Role, at time.Time) (booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return booking.Booking{}, fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
	}
	if b.Status != from {
		return booking.Booking{}, fmt.Errorf("%w: booking %s is %s", booking.ErrStatusChanged, id, b.Status)
	}
	b.Status = to
	b.CancelledBy = cancelledBy
	b.UpdatedAt = at
	m.bookings[id] = b
	return b, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[id]; !ok {
		return fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
	}
	delete(m.bookings, id)
	if fid, ok := m.byBooking[id]; ok {
		delete(m.feedback, fid)
		delete(m.byBooking, id)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, f booking.Filter) ([]booking.Booking, error) {
	m.mu.RLock()
	out := make([]booking.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b booking.Booking) int {
		return cmp.Or(
			compareDates(a.Date, b.Date),
			cmp.Compare(a.Hour, b.Hour),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

func (m *MemoryStore) CreateFeedback(_ context.Context, f booking.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[f.BookingID]; !ok {
		return fmt.Errorf("%w: booking %s", booking.ErrNotFound, f.BookingID)
	}
	if _, exists := m.byBooking[f.BookingID]; exists {
		return fmt.Errorf("%w: booking %s", booking.ErrFeedbackExists, f.BookingID)
	}
	m.feedback[f.ID] = f
	m.byBooking[f.BookingID] = f.ID
	return nil
}

func (m *MemoryStore) GetFeedback(_ context.Context, id string) (booking.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.feedback[id]
	if !ok {
		return booking.Feedback{}, fmt.Errorf("%w: feedback %s", booking.ErrNotFound, id)
	}
	return f, nil
}

func (m *MemoryStore) FeedbackForBooking(_ context.Context, bookingID string) (booking.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fid, ok := m.byBooking[bookingID]
	if !ok {
		return booking.Feedback{}, fmt.Errorf("%w: feedback for booking %s", booking.ErrNotFound, bookingID)
	}
	return m.feedback[fid], nil
}

func (m *MemoryStore) UpdateModeration(_ context.Context, id string, from, to booking.ModerationState) (booking.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feedback[id]
	if !ok {
		return booking.Feedback{}, fmt.Errorf("%w: feedback %s", booking.ErrNotFound, id)
	}
	if f.ModerationState != from {
		return booking.Feedback{}, fmt.Errorf("%w: feedback %s is %s", booking.ErrStatusChanged, id, f.ModerationState)
	}
	f.ModerationState = to
	m.feedback[id] = f
	return f, nil
}

func (m *MemoryStore) ListFeedback(_ context.Context, state booking.ModerationState) ([]booking.Feedback, error) {
	m.mu.RLock()
	out := make([]booking.Feedback, 0, len(m.feedback))
	for _, f := range m.feedback {
		if state == "" || f.ModerationState == state {
			out = append(out, f)
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b booking.Feedback) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func compareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
