// Package booking holds the per-client booking conversation: the session
// state machine, the in-memory session table and the per-client dispatcher.
package booking

import (
	"sync"
	"time"

	"github.com/ykvlv/booking-bot/internal/availability"
	"github.com/ykvlv/booking-bot/internal/domain"
)

// State is the step a booking session is waiting on.
// StateIdle doubles as the rest state after commit, cancel or abort: no session is kept.
type State int

const (
	StateIdle State = iota
	StateAwaitingName
	StateAwaitingDay
	StateAwaitingProvider
	StateAwaitingTime
	StateAwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingName:
		return "awaiting_name"
	case StateAwaitingDay:
		return "awaiting_day"
	case StateAwaitingProvider:
		return "awaiting_provider"
	case StateAwaitingTime:
		return "awaiting_time"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// Session is the partially collected booking of one client.
type Session struct {
	ClientID  int64
	State     State
	FirstName string
	LastName  string
	Day       string
	Provider  domain.Provider
	Time      string
	// View is the most recent occupancy shown for Day/Provider.
	View      availability.View
	StartedAt time.Time
	UpdatedAt time.Time
}

// back moves the session one step backwards, discarding what the target
// step and every later step collected. It reports false if there is no previous step.
func (s *Session) back() bool {
	switch s.State {
	case StateAwaitingDay:
		s.State = StateAwaitingName
		s.FirstName, s.LastName = "", ""
		s.Day = ""
	case StateAwaitingProvider:
		s.State = StateAwaitingDay
		s.Day, s.Provider = "", ""
	case StateAwaitingTime:
		s.State = StateAwaitingProvider
		s.Provider, s.Time = "", ""
		s.View = availability.View{}
	case StateAwaitingConfirmation:
		s.State = StateAwaitingTime
		s.Time = ""
	default:
		return false
	}
	return true
}

// Sessions is the in-memory session table keyed by client id.
// Sessions are not persisted; a restart drops them.
type Sessions struct {
	mu    sync.RWMutex
	state map[int64]Session
}

// NewSessions creates an empty table.
func NewSessions() *Sessions {
	return &Sessions{state: make(map[int64]Session)}
}

func (s *Sessions) get(clientID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.state[clientID]
	return sess, ok
}

func (s *Sessions) put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[sess.ClientID] = sess
}

func (s *Sessions) delete(clientID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, clientID)
}

// touch marks the client's session as active at, if there is one.
func (s *Sessions) touch(clientID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.state[clientID]; ok {
		sess.UpdatedAt = at
		s.state[clientID] = sess
	}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state)
}

// expire drops sessions last touched before cutoff and returns their client ids.
func (s *Sessions) expire(cutoff time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, sess := range s.state {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.state, id)
			ids = append(ids, id)
		}
	}
	return ids
}
