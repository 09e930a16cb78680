// Package booking implements the lesson booking lifecycle: reservation with
// conflict checking, the status state machine, and the feedback sub-flow.
package booking

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending         Status = "pending"
	StatusConfirmed       Status = "confirmed"
	StatusReminded        Status = "reminded"
	StatusFeedbackPending Status = "feedback_pending"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
)

// Active reports whether a booking in this status occupies its slot.
func (s Status) Active() bool {
	return s != StatusCancelled && s != StatusRejected
}

// Upcoming reports whether the lesson is still ahead from the lifecycle's point of view.
func (s Status) Upcoming() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusReminded
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusReminded, StatusFeedbackPending, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Role identifies who triggers a lifecycle transition.
type Role string

const (
	RoleClient    Role = "client"
	RoleAdmin     Role = "admin"
	RoleScheduler Role = "scheduler"
)

// Actor is the initiator of an operation. ID is the opaque recipient id for
// clients and admins and empty for the scheduler.
type Actor struct {
	Role Role
	ID   string
}

// Client returns a client actor.
func Client(id string) Actor { return Actor{Role: RoleClient, ID: id} }

// Admin returns an admin actor.
func Admin(id string) Actor { return Actor{Role: RoleAdmin, ID: id} }

// SchedulerActor is the actor used by the background scheduler.
var SchedulerActor = Actor{Role: RoleScheduler}

// SlotKey identifies a single bookable unit of time.
type SlotKey struct {
	ProviderID string
	Date       civil.Date
	Hour       string
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.ProviderID, k.Date, k.Hour)
}

// Booking is a reservation of a slot by a requester.
type Booking struct {
	ID          string
	ProviderID  string
	Date        civil.Date
	Hour        string
	RequesterID string
	DisplayName string
	Status      Status
	// CancelledBy records which role cancelled the booking; empty otherwise.
	CancelledBy Role
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the booking's slot key.
func (b Booking) Key() SlotKey {
	return SlotKey{ProviderID: b.ProviderID, Date: b.Date, Hour: b.Hour}
}

// ModerationState is the review state of a feedback record.
type ModerationState string

const (
	ModerationAutoApproved  ModerationState = "auto_approved"
	ModerationPendingReview ModerationState = "pending_review"
	ModerationApproved      ModerationState = "approved"
)

// Feedback is a lesson rating left by the requester.
type Feedback struct {
	ID              string
	BookingID       string
	Stars           int
	Comment         string
	ModerationState ModerationState
	CreatedAt       time.Time
}

// Filter selects bookings in list queries. Zero fields do not constrain.
type Filter struct {
	ProviderID  string
	RequesterID string
	// From and To bound the lesson date, both inclusive.
	From     civil.Date
	To       civil.Date
	Statuses []Status
	// ActiveOnly excludes cancelled and rejected bookings.
	ActiveOnly bool
}

// Match reports whether b satisfies the filter.
func (f Filter) Match(b Booking) bool {
	if f.ProviderID != "" && b.ProviderID != f.ProviderID {
		return false
	}
	if f.RequesterID != "" && b.RequesterID != f.RequesterID {
		return false
	}
	if !f.From.IsZero() && b.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && b.Date.After(f.To) {
		return false
	}
	if f.ActiveOnly && !b.Status.Active() {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if b.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// DayAvailability lists the free hours of one candidate date.
type DayAvailability struct {
	Date  civil.Date
	Hours []string
}

// Decision is an admin verdict on a pending booking.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)
