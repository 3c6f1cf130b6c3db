package dispatch

import (
	"sync"
	"time"
)

// Session is the ephemeral per-pickup dispatch state: the ranked candidate
// list, the iteration cursor, the armed offer timer, and the rejections
// accumulated during this session. The store remains the source of truth;
// a session lost to a restart is rebuilt on demand from the persisted row.
type Session struct {
	PickupID   string
	Candidates []Candidate
	Index      int

	timer    *time.Timer
	rejected map[string]struct{}
	mu       sync.Mutex
}

// NewSession creates a session positioned at the first candidate
func NewSession(pickupID string, candidates []Candidate) *Session {
	return &Session{
		PickupID:   pickupID,
		Candidates: candidates,
		rejected:   make(map[string]struct{}),
	}
}

// Current returns the candidate at the cursor, or nil when exhausted
func (s *Session) Current() *Candidate {
	if s.Index < 0 || s.Index >= len(s.Candidates) {
		return nil
	}
	return &s.Candidates[s.Index]
}

// MarkRejected records an in-session rejection for the vendor
func (s *Session) MarkRejected(vendorRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[vendorRef] = struct{}{}
}

// IsRejected reports whether the vendor was rejected during this session
func (s *Session) IsRejected(vendorRef string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rejected[vendorRef]
	return ok
}

// ArmTimer replaces the session timer. Any previously armed timer is stopped;
// stopping a timer whose callback already fired is a no-op.
func (s *Session) ArmTimer(t *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = t
}

// CancelTimer stops the armed timer if any
func (s *Session) CancelTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// SessionStore is the process-local mapping from pickup id to dispatch
// session. Concurrent touches are tolerated because the persisted row is
// authoritative; the store only guards the map itself.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.Mutex
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Get returns the session for a pickup, or nil
func (st *SessionStore) Get(pickupID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[pickupID]
}

// Put stores the session, replacing (and disarming) any previous one
func (st *SessionStore) Put(s *Session) {
	st.mu.Lock()
	prev := st.sessions[s.PickupID]
	st.sessions[s.PickupID] = s
	st.mu.Unlock()

	if prev != nil && prev != s {
		prev.CancelTimer()
	}
}

// Drop removes the session and cancels its timer
func (st *SessionStore) Drop(pickupID string) {
	st.mu.Lock()
	s := st.sessions[pickupID]
	delete(st.sessions, pickupID)
	st.mu.Unlock()

	if s != nil {
		s.CancelTimer()
	}
}

// DropAll removes every session, cancelling all timers. Used on shutdown.
func (st *SessionStore) DropAll() {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range sessions {
		s.CancelTimer()
	}
}
