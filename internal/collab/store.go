package collab

import (
	"sync"
	"time"
)

// Store is the keyed registry of live sessions. Operations on different note
// ids never block each other beyond the brief map access; all per-document
// state lives behind the session's own mutex.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	clock    func() time.Time
}

// NewStore constructs an empty session registry. A nil clock defaults to
// time.Now.
func NewStore(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		sessions: make(map[string]*Session),
		clock:    clock,
	}
}

// GetOrCreate returns the live session for the note, creating it at version 1
// from the seed fields when absent. Under concurrent calls for the same note
// the first caller creates; the rest observe the created session.
func (s *Store) GetOrCreate(noteID, organizationID, seedTitle, seedContent string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[noteID]; ok {
		return session
	}
	session := newSession(noteID, organizationID, seedTitle, seedContent, s.clock().UTC())
	s.sessions[noteID] = session
	return session
}

// Get returns the live session for the note. Absence is a normal result, not
// an error.
func (s *Store) Get(noteID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[noteID]
	return session, ok
}

// Remove deregisters the session for the note. No-op when absent.
func (s *Store) Remove(noteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, noteID)
}

// ForEach visits every live session. The callback must not call back into the
// store.
func (s *Store) ForEach(visit func(*Session)) {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	for _, session := range sessions {
		visit(session)
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
