package storage

import (
	"slices"
	"sync"

	"github.com/lehigh-university-libraries/alttext/internal/models"
)

// SessionStore keeps batches submitted through the web interface in memory.
// Nothing survives a restart.
type SessionStore struct {
	sessions map[string]*models.Session
	mu       sync.RWMutex
	limit    int
	order    []string // insertion order, oldest first
}

// New returns a store holding at most limit sessions; older sessions are
// evicted first. A limit < 1 means unbounded.
func New(limit int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
		limit:    limit,
	}
}

func (s *SessionStore) Get(sessionID string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *SessionStore) Set(sessionID string, session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		s.order = append(s.order, sessionID)
	}
	s.sessions[sessionID] = session

	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.sessions, s.order[0])
		s.order = s.order[1:]
	}
}

// GetAll returns every session, oldest first.
func (s *SessionStore) GetAll() []*models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Session, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.sessions[id])
	}
	return result
}

func (s *SessionStore) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return false
	}
	delete(s.sessions, sessionID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == sessionID })
	return true
}
