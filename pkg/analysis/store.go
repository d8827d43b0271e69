package analysis

import (
	"sync"
)

// SessionStore is the process-wide registry of live analysis sessions.
// The store mutex guards the map; each Session carries its own lock so
// per-session updates are serialized without blocking unrelated sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Put inserts a session into the store.
func (s *SessionStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// Get returns the live session for id, if any.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Delete removes and returns the session for id. Removing is a one-time
// transition: a second Delete for the same id reports false.
func (s *SessionStore) Delete(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return session, ok
}

// Count returns the number of live sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Update applies fn to the session for id under the session's own lock.
// It reports false when the session is no longer live, in which case fn
// does not run; callers treat that as a dropped update, not an error.
func (s *SessionStore) Update(id string, fn func(*Session)) bool {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return false
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	// The session may have been deleted between the lookup and the lock;
	// re-check membership so an ended session is never resurrected.
	s.mu.RLock()
	_, stillLive := s.sessions[id]
	s.mu.RUnlock()
	if !stillLive {
		return false
	}

	fn(session)
	return true
}
