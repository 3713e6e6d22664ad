package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"access-service/internal/clock"
	"access-service/internal/models"
)

// SessionStore is the process-local base session store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	ttl      time.Duration
	clock    clock.Clock
}

func NewSessionStore(ttl time.Duration, clk clock.Clock) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
		ttl:      ttl,
		clock:    clk,
	}
}

func (s *SessionStore) Create(ctx context.Context, userID, ip, userAgent string) (*models.Session, error) {
	now := s.clock.Now()
	session := &models.Session{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
		LastAccessedAt: now,
		IsActive:       true,
		IPAddress:      ip,
		UserAgent:      userAgent,
	}

	s.mu.Lock()
	s.sessions[session.SessionID] = session
	s.mu.Unlock()

	clone := *session
	return &clone, nil
}

// Get returns the session, deleting it first if it has expired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, models.ErrSessionNotFound
	}
	if session.Expired(now) {
		delete(s.sessions, sessionID)
		return nil, models.ErrSessionNotFound
	}

	clone := *session
	return &clone, nil
}

func (s *SessionStore) Touch(ctx context.Context, sessionID string) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return models.ErrSessionNotFound
	}
	session.LastAccessedAt = now
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
