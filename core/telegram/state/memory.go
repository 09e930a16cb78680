package state

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/m3rciful/vocalbot/core/logger"
	tghelpers "github.com/m3rciful/vocalbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// DefaultTTL bounds how long an idle dialog is kept.
const DefaultTTL = 15 * time.Minute

// Options configures the in-memory manager.
type Options struct {
	TTL   time.Duration
	Flows []Flow
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	flows    map[string]Flow
	handlers map[State]tele.HandlerFunc
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryManager constructs an in-memory Manager.
func NewMemoryManager(opts Options) Manager {
	m := &memoryManager{
		sessions: make(map[int64]*Session),
		flows:    make(map[string]Flow, len(opts.Flows)),
		handlers: make(map[State]tele.HandlerFunc),
		ttl:      opts.TTL,
		now:      opts.Now,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	for _, f := range opts.Flows {
		m.flows[f.Name] = f
	}
	return m
}

// live returns the session if present and fresh. Callers hold at least a read lock.
func (m *memoryManager) live(userID int64, now time.Time) (*Session, bool) {
	s, ok := m.sessions[userID]
	if !ok || now.Sub(s.UpdatedAt) > m.ttl {
		return nil, false
	}
	return s, true
}

func (m *memoryManager) Begin(userID int64, flow string) (Session, error) {
	f, ok := m.flows[flow]
	if !ok || len(f.Steps) == 0 {
		return Session{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flow)
	}
	s := &Session{
		UserID:    userID,
		Flow:      flow,
		State:     f.Steps[0],
		Data:      make(map[string]string),
		UpdatedAt: m.now(),
	}
	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()
	return s.clone(), nil
}

func (m *memoryManager) Get(userID int64) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.live(userID, m.now())
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

func (m *memoryManager) Advance(userID int64, to State, data map[string]string) (Session, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live(userID, now)
	if !ok {
		delete(m.sessions, userID)
		return Session{}, ErrNoSession
	}
	f := m.flows[s.Flow]
	from, target := f.index(s.State), f.index(to)
	if target < 0 || target <= from {
		return Session{}, fmt.Errorf("%w: %s -> %s", ErrStepOutOfOrder, s.State, to)
	}
	s.State = to
	maps.Copy(s.Data, data)
	s.UpdatedAt = now
	return s.clone(), nil
}

func (m *memoryManager) Update(userID int64, data map[string]string) (Session, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live(userID, now)
	if !ok {
		delete(m.sessions, userID)
		return Session{}, ErrNoSession
	}
	maps.Copy(s.Data, data)
	s.UpdatedAt = now
	return s.clone(), nil
}

// GetState returns the current step of a user, or StateIdle if none exists.
func (m *memoryManager) GetState(userID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.live(userID, m.now()); ok {
		return s.State
	}
	return StateIdle
}

// InProgress reports whether the user has a live session.
func (m *memoryManager) InProgress(userID int64) bool {
	return m.GetState(userID) != StateIdle
}

// Clear removes the entire session for a user.
func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

func (m *memoryManager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if now.Sub(s.UpdatedAt) > m.ttl {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *memoryManager) Handle(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[st] = h
}

// ManagerHandler executes the handler registered for the user's current step, if any.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	userID := c.Sender().ID
	current := m.GetState(userID)
	ctx := tghelpers.BuildContext(c)
	logger.Debug(ctx, "tg", "fsm.manager",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("state", string(current)),
	)

	m.mu.RLock()
	handler, ok := m.handlers[current]
	m.mu.RUnlock()
	if ok {
		return handler(c)
	}
	return nil
}
