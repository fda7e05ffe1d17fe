package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps sessions in memory, keyed by the id in the session cookie
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[uuid.UUID]*Session)}
}

// Get returns the session for id
func (st *Store) Get(id uuid.UUID) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// GetOrCreate returns the session named by cookieValue, creating one when the
// value is not a known session id. created reports whether a new id was issued.
func (st *Store) GetOrCreate(cookieValue string) (s *Session, created bool) {
	if id, err := uuid.Parse(cookieValue); err == nil {
		if s, ok := st.Get(id); ok {
			return s, false
		}
	}

	s = newSession(uuid.New())
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s, true
}

// Len returns the number of live sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep closes and forgets sessions idle for longer than maxIdle
func (st *Store) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	st.mu.RLock()
	candidates := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		candidates = append(candidates, s)
	}
	st.mu.RUnlock()

	var idle []*Session
	for _, s := range candidates {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
		}
	}

	var expired []*Session
	st.mu.Lock()
	for _, s := range idle {
		if st.sessions[s.ID] == s {
			delete(st.sessions, s.ID)
			expired = append(expired, s)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		log.Printf("[SessionStore] Expired %d idle sessions", len(expired))
	}
	return len(expired)
}
