package booking

import (
	"fmt"
	"slices"
)

type edge struct {
	from Status
	to   Status
}

// transitions lists every permitted edge with the roles allowed to trigger it.
var transitions = map[edge][]Role{
	{StatusPending, StatusConfirmed}:        {RoleAdmin},
	{StatusPending, StatusRejected}:         {RoleAdmin},
	{StatusPending, StatusCancelled}:        {RoleClient, RoleAdmin},
	{StatusConfirmed, StatusReminded}:       {RoleScheduler},
	{StatusConfirmed, StatusCancelled}:      {RoleClient, RoleAdmin},
	{StatusReminded, StatusFeedbackPending}: {RoleScheduler},
	{StatusReminded, StatusCancelled}:       {RoleClient, RoleAdmin},
}

// CanTransition reports whether from -> to is a documented edge.
func CanTransition(from, to Status) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// CheckTransition validates the edge and the role allowed to trigger it.
func CheckTransition(from, to Status, role Role) error {
	roles, ok := transitions[edge{from, to}]
	if !ok {
		return &TransitionError{From: from, To: to}
	}
	if !slices.Contains(roles, role) {
		return fmt.Errorf("%w: %s may not move %s -> %s", ErrForbidden, role, from, to)
	}
	return nil
}

// Cancellable reports whether a client or admin may still cancel a booking in status s.
func Cancellable(s Status) bool {
	return CanTransition(s, StatusCancelled)
}
