package memory

import (
	"context"
	"sync"
	"time"

	"access-service/internal/models"
)

// AdminStore keeps admin sessions and their bearer tokens under one lock so
// that token and session updates are observed together.
type AdminStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.AdminSession
	tokens   map[string]string
	// userTokens indexes live tokens by the owning user id.
	userTokens map[string]map[string]struct{}
}

func NewAdminStore() *AdminStore {
	return &AdminStore{
		sessions:   make(map[string]*models.AdminSession),
		tokens:     make(map[string]string),
		userTokens: make(map[string]map[string]struct{}),
	}
}

func cloneAdminSession(s *models.AdminSession) *models.AdminSession {
	clone := *s
	clone.Permissions = models.NewPermissionSet(s.Permissions.Slice()...)
	return &clone
}

func (s *AdminStore) CreateSession(ctx context.Context, session *models.AdminSession) error {
	s.mu.Lock()
	s.sessions[session.SessionID] = cloneAdminSession(session)
	s.mu.Unlock()
	return nil
}

func (s *AdminStore) GetSession(ctx context.Context, sessionID string) (*models.AdminSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, models.ErrAdminSessionNotFound
	}
	return cloneAdminSession(session), nil
}

func (s *AdminStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return models.ErrAdminSessionNotFound
	}
	session.LastAccessedAt = at
	return nil
}

func (s *AdminStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// PutToken maps token to sessionID. The session must already exist so the
// token can be indexed under its owner. The ttl is ignored here; expiry is
// governed by the session record.
func (s *AdminStore) PutToken(ctx context.Context, token, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return models.ErrAdminSessionNotFound
	}
	s.tokens[token] = sessionID

	owned, ok := s.userTokens[session.UserID]
	if !ok {
		owned = make(map[string]struct{})
		s.userTokens[session.UserID] = owned
	}
	owned[token] = struct{}{}
	return nil
}

func (s *AdminStore) ResolveToken(ctx context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.tokens[token]
	if !exists {
		return "", models.ErrAdminTokenNotFound
	}
	return sessionID, nil
}

func (s *AdminStore) DeleteToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	for userID, owned := range s.userTokens {
		if _, ok := owned[token]; ok {
			delete(owned, token)
			if len(owned) == 0 {
				delete(s.userTokens, userID)
			}
			break
		}
	}
	return nil
}

func (s *AdminStore) SessionsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.userTokens[userID]
	tokens := make([]string, 0, len(owned))
	for token := range owned {
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (s *AdminStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
