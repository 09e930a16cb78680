package state

import (
	"errors"
	"maps"
	"time"

	tele "gopkg.in/telebot.v4"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

var (
	// ErrStepOutOfOrder is returned when a session is asked to move backwards or sideways.
	ErrStepOutOfOrder = errors.New("state: step out of order")
	// ErrNoSession is returned when the user has no live session.
	ErrNoSession = errors.New("state: no active session")
	// ErrUnknownFlow is returned when a flow name was never registered.
	ErrUnknownFlow = errors.New("state: unknown flow")
)

// Flow is an ordered list of dialog steps.
type Flow struct {
	Name  string
	Steps []State
}

// NewFlow builds a flow from its steps in order.
func NewFlow(name string, steps ...State) Flow {
	return Flow{Name: name, Steps: append([]State(nil), steps...)}
}

func (f Flow) index(st State) int {
	for i, s := range f.Steps {
		if s == st {
			return i
		}
	}
	return -1
}

// Session stores conversation state and collected values for a user.
type Session struct {
	UserID    int64
	Flow      string
	State     State
	Data      map[string]string
	UpdatedAt time.Time
}

// Value returns a collected value.
func (s Session) Value(key string) string {
	return s.Data[key]
}

func (s Session) clone() Session {
	s.Data = maps.Clone(s.Data)
	return s
}

// Manager orchestrates user sessions and FSM state transitions.
type Manager interface {
	// Begin starts flow at its first step, replacing any existing session.
	Begin(userID int64, flow string) (Session, error)
	// Get returns a copy of the live session.
	Get(userID int64) (Session, bool)
	// Advance moves the session to a later step of its flow and merges data.
	Advance(userID int64, to State, data map[string]string) (Session, error)
	// Update merges data without changing the step.
	Update(userID int64, data map[string]string) (Session, error)
	GetState(userID int64) State
	InProgress(userID int64) bool
	Clear(userID int64)
	// Sweep drops sessions idle longer than the TTL and returns how many were removed.
	Sweep(now time.Time) int

	// Handle registers the text handler used while a session sits at st.
	Handle(st State, h tele.HandlerFunc)
	ManagerHandler(c tele.Context) error
}
