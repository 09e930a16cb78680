package booking

import (
	"context"
	"time"
)

// Store persists bookings and feedback.
//
// Create must fail with ErrSlotTaken when another active booking holds the
// same slot key. UpdateStatus is a compare-and-set on the current status and
// fails with ErrStatusChanged when the stored status differs from from.
type Store interface {
	Create(ctx context.Context, b Booking) error
	Get(ctx context.Context, id string) (Booking, error)
	UpdateStatus(ctx context.Context, id string, from, to Status, cancelledBy Role, at time.Time) (Booking, error)
	// Delete removes the booking and any feedback attached to it.
	Delete(ctx context.Context, id string) error
	// List returns bookings ordered by lesson date, hour and creation time.
	List(ctx context.Context, f Filter) ([]Booking, error)

	CreateFeedback(ctx context.Context, f Feedback) error
	GetFeedback(ctx context.Context, id string) (Feedback, error)
	FeedbackForBooking(ctx context.Context, bookingID string) (Feedback, error)
	UpdateModeration(ctx context.Context, id string, from, to ModerationState) (Feedback, error)
	// ListFeedback returns feedback in the given state, or all feedback for an empty state, oldest first.
	ListFeedback(ctx context.Context, state ModerationState) ([]Feedback, error)
}

// MessageKind names a notification template.
type MessageKind string

const (
	KindBookingRequested   MessageKind = "booking_requested"
	KindBookingConfirmed   MessageKind = "booking_confirmed"
	KindBookingRejected    MessageKind = "booking_rejected"
	KindBookingCancelled   MessageKind = "booking_cancelled"
	KindBookingRescheduled MessageKind = "booking_rescheduled"
	KindLessonReminder     MessageKind = "lesson_reminder"
	KindFeedbackRequest    MessageKind = "feedback_request"
	KindFeedbackReview     MessageKind = "feedback_review"
)

// Notification parameter keys.
const (
	ParamBookingID    = "booking_id"
	ParamProviderID   = "provider_id"
	ParamProviderName = "provider_name"
	ParamDate         = "date"
	ParamHour         = "hour"
	ParamName         = "name"
	ParamRequesterID  = "requester_id"
	ParamCancelledBy  = "cancelled_by"
	ParamPrevDate     = "prev_date"
	ParamPrevHour     = "prev_hour"
	ParamFeedbackID   = "feedback_id"
	ParamStars        = "stars"
	ParamComment      = "comment"
)

// Notifier delivers a templated message to a recipient. Implementations
// should enqueue rather than block on the network.
type Notifier interface {
	Notify(ctx context.Context, recipientID string, kind MessageKind, params map[string]string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, recipientID string, kind MessageKind, params map[string]string) error

func (f NotifierFunc) Notify(ctx context.Context, recipientID string, kind MessageKind, params map[string]string) error {
	return f(ctx, recipientID, kind, params)
}

// AdminDirectory resolves the configured administrators.
type AdminDirectory interface {
	IsAdmin(id string) bool
	AdminIDs() []string
}

// StaticAdmins is an AdminDirectory backed by a fixed list.
type StaticAdmins []string

func (a StaticAdmins) IsAdmin(id string) bool {
	if id == "" {
		return false
	}
	for _, v := range a {
		if v == id {
			return true
		}
	}
	return false
}

func (a StaticAdmins) AdminIDs() []string {
	out := make([]string, len(a))
	copy(out, a)
	return out
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)
