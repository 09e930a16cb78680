package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/m3rciful/vocalbot/core/logger"
)

// ReserveRequest describes a new booking.
type ReserveRequest struct {
	ProviderID  string
	Date        civil.Date
	Hour        string
	RequesterID string
	DisplayName string
}

// TryReserve validates the slot against the provider's availability and
// atomically creates a pending booking if no active booking holds the slot.
// It does not notify anyone.
func (s *Service) TryReserve(ctx context.Context, req ReserveRequest) (Booking, error) {
	requester := strings.TrimSpace(req.RequesterID)
	name := normalizeText(req.DisplayName, maxNameRunes)
	if requester == "" {
		return Booking{}, fmt.Errorf("%w: requester id is empty", ErrInvalidRequest)
	}
	if name == "" {
		return Booking{}, fmt.Errorf("%w: display name is empty", ErrInvalidRequest)
	}
	p, err := s.catalog.Provider(req.ProviderID)
	if err != nil {
		return Booking{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	now := s.clock.Now()
	if !s.catalog.IsBookable(p, req.Date, req.Hour, now) {
		return Booking{}, fmt.Errorf("%w: %s %s %s", ErrInvalidSlot, p.ID, req.Date, req.Hour)
	}

	if s.maxActive > 0 {
		unlockUser := s.locks.Lock("requester:" + requester)
		defer unlockUser()
		n, err := s.countUpcoming(ctx, requester)
		if err != nil {
			return Booking{}, err
		}
		if n >= s.maxActive {
			return Booking{}, fmt.Errorf("%w: %d of %d", ErrBookingLimit, n, s.maxActive)
		}
	}

	key := SlotKey{ProviderID: p.ID, Date: req.Date, Hour: req.Hour}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	b := Booking{
		ID:          s.newID(),
		ProviderID:  p.ID,
		Date:        req.Date,
		Hour:        req.Hour,
		RequesterID: requester,
		DisplayName: name,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, b); err != nil {
		return Booking{}, err
	}
	logger.Info(ctx, componentBooking, "booking.create",
		slog.String("booking_id", b.ID),
		slog.String("provider_id", b.ProviderID),
		slog.String("lesson_date", b.Date.String()),
		slog.String("lesson_hour", b.Hour),
	)
	return b, nil
}

// CreateBooking reserves a slot and notifies every admin about the new request.
func (s *Service) CreateBooking(ctx context.Context, req ReserveRequest) (Booking, error) {
	b, err := s.TryReserve(ctx, req)
	if err != nil {
		return Booking{}, err
	}
	s.notifyAdmins(ctx, KindBookingRequested, s.bookingParams(b))
	return b, nil
}

func (s *Service) countUpcoming(ctx context.Context, requester string) (int, error) {
	bookings, err := s.store.List(ctx, Filter{
		RequesterID: requester,
		Statuses:    []Status{StatusPending, StatusConfirmed, StatusReminded},
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range bookings {
		p, err := s.catalog.Provider(b.ProviderID)
		if err != nil {
			n++
			continue
		}
		start, err := startOf(p, b)
		if err != nil || start.After(s.clock.Now()) {
			n++
		}
	}
	return n, nil
}

// Reschedule moves a pending or confirmed booking to another slot of the same
// provider. The new booking is created pending and the old one is cancelled.
func (s *Service) Reschedule(ctx context.Context, id string, date civil.Date, hour string, actor Actor) (Booking, error) {
	old, err := s.store.Get(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if err := s.authorize(actor, old); err != nil {
		return Booking{}, err
	}
	if actor.Role == RoleScheduler {
		return Booking{}, fmt.Errorf("%w: scheduler may not reschedule", ErrForbidden)
	}
	if actor.Role == RoleClient && s.Started(old) {
		return Booking{}, fmt.Errorf("%w: lesson has already started", ErrForbidden)
	}
	p, err := s.catalog.Provider(old.ProviderID)
	if err != nil {
		return Booking{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	now := s.clock.Now()
	if !s.catalog.IsBookable(p, date, hour, now) {
		return Booking{}, fmt.Errorf("%w: %s %s %s", ErrInvalidSlot, p.ID, date, hour)
	}
	target := SlotKey{ProviderID: p.ID, Date: date, Hour: hour}
	if target == old.Key() {
		return Booking{}, fmt.Errorf("%w: booking already holds this slot", ErrInvalidRequest)
	}

	unlock := s.locks.LockAll(old.Key().String(), target.String())
	old, err = s.store.Get(ctx, id)
	if err != nil {
		unlock()
		return Booking{}, err
	}
	if old.Status != StatusPending && old.Status != StatusConfirmed {
		unlock()
		return Booking{}, &TransitionError{From: old.Status, To: StatusCancelled}
	}
	nb := Booking{
		ID:          s.newID(),
		ProviderID:  p.ID,
		Date:        date,
		Hour:        hour,
		RequesterID: old.RequesterID,
		DisplayName: old.DisplayName,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, nb); err != nil {
		unlock()
		return Booking{}, err
	}
	if _, err := s.store.UpdateStatus(ctx, old.ID, old.Status, StatusCancelled, actor.Role, now); err != nil {
		if derr := s.store.Delete(ctx, nb.ID); derr != nil {
			err = errors.Join(err, derr)
		}
		unlock()
		if errors.Is(err, ErrStatusChanged) {
			return Booking{}, &TransitionError{From: old.Status, To: StatusCancelled}
		}
		return Booking{}, err
	}
	unlock()

	logger.Info(ctx, componentBooking, "booking.reschedule",
		slog.String("booking_id", nb.ID),
		slog.String("prev_booking_id", old.ID),
		slog.String("lesson_date", nb.Date.String()),
		slog.String("lesson_hour", nb.Hour),
		slog.String("actor", string(actor.Role)),
	)
	params := s.bookingParams(nb)
	params[ParamPrevDate] = old.Date.String()
	params[ParamPrevHour] = old.Hour
	s.dispatch(ctx, nb.RequesterID, KindBookingRescheduled, params)
	s.notifyAdmins(ctx, KindBookingRequested, params)
	return nb, nil
}
