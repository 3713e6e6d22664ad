package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"access-service/internal/models"
)

// SessionService manages base sessions and resolves them to users.
type SessionService struct {
	store     models.SessionStore
	directory models.UserDirectory
	logger    *zap.Logger
}

func NewSessionService(store models.SessionStore, directory models.UserDirectory, logger *zap.Logger) *SessionService {
	return &SessionService{store: store, directory: directory, logger: logger}
}

// Create opens a session for an existing directory user.
func (s *SessionService) Create(ctx context.Context, userID, ip, userAgent string) (*models.Session, error) {
	if _, err := s.directory.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	session, err := s.store.Create(ctx, userID, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Session created",
		zap.String("user_id", userID),
		zap.String("session_id", session.SessionID))
	return session, nil
}

// CreateForEmail opens a session for the directory user owning email.
func (s *SessionService) CreateForEmail(ctx context.Context, email, ip, userAgent string) (*models.Session, *models.User, error) {
	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	session, err := s.Create(ctx, user.UserID, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, models.ErrSessionNotFound
	}
	return s.store.Get(ctx, sessionID)
}

// UserForSession resolves a session to its user. The session is touched
// before the directory lookup, and stays touched even if the lookup fails.
func (s *SessionService) UserForSession(ctx context.Context, sessionID string) (*models.User, *models.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.store.Touch(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("touch session: %w", err)
	}
	if fresh, err := s.store.Get(ctx, sessionID); err == nil {
		session = fresh
	}

	user, err := s.directory.GetUser(ctx, session.UserID)
	if err != nil {
		if !errors.Is(err, models.ErrUserNotFound) {
			s.logger.Error("User directory lookup failed",
				zap.String("user_id", session.UserID),
				zap.Error(err))
		}
		return nil, session, err
	}
	return user, session, nil
}

func (s *SessionService) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
