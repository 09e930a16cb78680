package booking

import (
	"errors"
	"fmt"
)

// Error is a classified booking error. The code is used for log correlation.
type Error struct {
	code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Code returns the stable error code.
func (e *Error) Code() string { return e.code }

var (
	// ErrInvalidSlot is returned when the requested slot is outside the provider's availability.
	ErrInvalidSlot = &Error{code: "INVALID_SLOT", msg: "booking: slot is not available for booking"}
	// ErrSlotTaken is returned when an active booking already occupies the slot.
	ErrSlotTaken = &Error{code: "SLOT_TAKEN", msg: "booking: slot already taken"}
	// ErrInvalidTransition is returned when the state machine rejects a status change.
	ErrInvalidTransition = &Error{code: "INVALID_TRANSITION", msg: "booking: invalid status transition"}
	// ErrNotFound is returned when a booking or feedback id does not exist.
	ErrNotFound = &Error{code: "NOT_FOUND", msg: "booking: not found"}
	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = &Error{code: "FORBIDDEN", msg: "booking: action not permitted"}
	// ErrBookingLimit is returned when the requester already holds the maximum of upcoming bookings.
	ErrBookingLimit = &Error{code: "BOOKING_LIMIT", msg: "booking: active booking limit reached"}
	// ErrInvalidRequest is returned for malformed input such as an empty display name.
	ErrInvalidRequest = &Error{code: "INVALID_REQUEST", msg: "booking: invalid request"}
	// ErrInvalidFeedback is returned for out-of-range ratings or bookings not awaiting feedback.
	ErrInvalidFeedback = &Error{code: "INVALID_FEEDBACK", msg: "booking: invalid feedback"}
	// ErrFeedbackExists is returned when feedback was already left for the booking.
	ErrFeedbackExists = &Error{code: "FEEDBACK_EXISTS", msg: "booking: feedback already submitted"}
	// ErrStatusChanged is returned by stores when a compare-and-set lost against a concurrent update.
	ErrStatusChanged = &Error{code: "STATUS_CHANGED", msg: "booking: status changed concurrently"}
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking: invalid status transition %s -> %s", e.From, e.To)
}

// Code returns the stable error code.
func (e *TransitionError) Code() string { return ErrInvalidTransition.code }

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// DispatchError wraps a notifier failure. It is logged and never rolls back the state change.
type DispatchError struct {
	Recipient string
	Kind      MessageKind
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("booking: dispatch %s to %s: %v", e.Kind, e.Recipient, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Code returns the stable error code.
func (e *DispatchError) Code() string { return "DISPATCH_FAILED" }

// IsUserFacing reports whether err should be shown to the requester rather than treated as a failure.
func IsUserFacing(err error) bool {
	for _, target := range []error{
		ErrInvalidSlot, ErrSlotTaken, ErrInvalidTransition, ErrNotFound, ErrForbidden,
		ErrBookingLimit, ErrInvalidRequest, ErrInvalidFeedback, ErrFeedbackExists,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
