package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/domain/repositories"
)

// SessionRepository is an in-process implementation of repositories.SessionRepository.
// Sessions live only as long as the server process.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new in-memory session repository
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*entities.Session),
	}
}

// Create implements SessionRepository interface
func (m *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return errors.New("session with this id already exists")
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

// Get implements SessionRepository interface
func (m *SessionRepository) Get(ctx context.Context, id string) (*entities.Session, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	// Return a copy to prevent external modifications
	return session.Clone(), nil
}

// Update implements SessionRepository interface
func (m *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; !exists {
		return domain.ErrSessionNotFound
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

// Delete implements SessionRepository interface
func (m *SessionRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return domain.ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// ExpireIdle implements SessionRepository interface
func (m *SessionRepository) ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, session := range m.sessions {
		if session.IsExpired() || session.IsIdleFor(maxIdle) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored sessions
func (m *SessionRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
