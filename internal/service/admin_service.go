package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"access-service/internal/clock"
	"access-service/internal/config"
	"access-service/internal/models"
)

const adminTokenBytes = 32

// IssuedCredential is the admin session plus the bearer token that is its
// only external reference.
type IssuedCredential struct {
	Token   string               `json:"token"`
	Session *models.AdminSession `json:"session"`
}

type AdminServiceConfig struct {
	AdminEmail    string
	SessionTTL    time.Duration
	ReissuePolicy string
}

// AdminService issues, verifies and revokes admin credentials. Every failure
// is one of the sentinel errors in this package so callers can tell a caller
// who never had access from one whose access was revoked.
type AdminService struct {
	store    models.AdminStore
	sessions *SessionService
	cfg      AdminServiceConfig
	clock    clock.Clock
	logger   *zap.Logger
}

func NewAdminService(store models.AdminStore, sessions *SessionService, cfg AdminServiceConfig, clk clock.Clock, logger *zap.Logger) *AdminService {
	cfg.AdminEmail = strings.TrimSpace(cfg.AdminEmail)
	if cfg.ReissuePolicy == "" {
		cfg.ReissuePolicy = config.ReissueAllowConcurrent
	}
	return &AdminService{store: store, sessions: sessions, cfg: cfg, clock: clk, logger: logger}
}

// IsAdministrator reports whether email matches the administrator identity.
func (s *AdminService) IsAdministrator(email string) bool {
	return s.cfg.AdminEmail != "" && strings.EqualFold(email, s.cfg.AdminEmail)
}

// Issue creates a new admin session and token for the user behind a valid
// base session. Nothing is stored unless the user is the administrator.
func (s *AdminService) Issue(ctx context.Context, baseSessionID string) (*IssuedCredential, *models.User, error) {
	user, _, err := s.sessions.UserForSession(ctx, baseSessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) || errors.Is(err, models.ErrUserNotFound) {
			return nil, nil, ErrBaseSessionRequired
		}
		return nil, nil, err
	}
	if !s.IsAdministrator(user.Email) {
		return nil, user, ErrNotAdministrator
	}

	if s.cfg.ReissuePolicy == config.ReissueRevokePrevious {
		if _, err := s.RevokeUser(ctx, user.UserID); err != nil {
			return nil, user, fmt.Errorf("revoke previous admin credentials: %w", err)
		}
	}

	token, err := generateToken()
	if err != nil {
		return nil, user, err
	}

	now := s.clock.Now()
	session := &models.AdminSession{
		SessionID:      uuid.NewString(),
		UserID:         user.UserID,
		Permissions:    models.NewPermissionSet(models.AllPermissions()...),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
		LastAccessedAt: now,
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, user, fmt.Errorf("create admin session: %w", err)
	}
	if err := s.store.PutToken(ctx, token, session.SessionID, s.cfg.SessionTTL); err != nil {
		if delErr := s.store.DeleteSession(ctx, session.SessionID); delErr != nil {
			s.logger.Error("Failed to roll back admin session",
				zap.String("session_id", session.SessionID), zap.Error(delErr))
		}
		return nil, user, fmt.Errorf("store admin token: %w", err)
	}

	s.logger.Info("Admin credential issued",
		zap.String("user_id", user.UserID),
		zap.String("admin_session_id", session.SessionID),
		zap.Time("expires_at", session.ExpiresAt))

	return &IssuedCredential{Token: token, Session: session}, user, nil
}

// Verify resolves token to a live admin session and records the access.
// Orphaned tokens and expired sessions are deleted before failing, so a
// token that failed that way can never verify again.
func (s *AdminService) Verify(ctx context.Context, token string) (*models.AdminSession, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	sessionID, err := s.store.ResolveToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrAdminTokenNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("resolve admin token: %w", err)
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrAdminSessionNotFound) {
			s.repairOrphan(ctx, token, sessionID)
			return nil, ErrTokenOrphaned
		}
		return nil, fmt.Errorf("load admin session: %w", err)
	}

	now := s.clock.Now()
	if session.Expired(now) {
		if err := s.store.DeleteSession(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("delete expired admin session: %w", err)
		}
		if err := s.store.DeleteToken(ctx, token); err != nil {
			return nil, fmt.Errorf("delete expired admin token: %w", err)
		}
		s.logger.Info("Admin session expired", zap.String("admin_session_id", sessionID))
		return nil, ErrAdminSessionExpired
	}

	if err := s.store.TouchSession(ctx, sessionID, now); err != nil {
		if errors.Is(err, models.ErrAdminSessionNotFound) {
			s.repairOrphan(ctx, token, sessionID)
			return nil, ErrTokenOrphaned
		}
		return nil, fmt.Errorf("touch admin session: %w", err)
	}
	session.LastAccessedAt = now
	return session, nil
}

func (s *AdminService) repairOrphan(ctx context.Context, token, sessionID string) {
	if err := s.store.DeleteToken(ctx, token); err != nil {
		s.logger.Error("Failed to delete orphaned admin token",
			zap.String("admin_session_id", sessionID), zap.Error(err))
		return
	}
	s.logger.Warn("Deleted orphaned admin token", zap.String("admin_session_id", sessionID))
}

// Peek returns the user id behind token without touching or repairing
// anything, or "" when the token does not resolve.
func (s *AdminService) Peek(ctx context.Context, token string) string {
	if token == "" {
		return ""
	}
	sessionID, err := s.store.ResolveToken(ctx, token)
	if err != nil {
		return ""
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil || session.Expired(s.clock.Now()) {
		return ""
	}
	return session.UserID
}

// SignOut deletes the session behind token, then the token. Unknown tokens
// succeed.
func (s *AdminService) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	sessionID, err := s.store.ResolveToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrAdminTokenNotFound) {
			return nil
		}
		return fmt.Errorf("resolve admin token: %w", err)
	}

	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	if err := s.store.DeleteToken(ctx, token); err != nil {
		return fmt.Errorf("delete admin token: %w", err)
	}
	return nil
}

// RevokeUser signs out every admin credential held by userID and returns how
// many were removed.
func (s *AdminService) RevokeUser(ctx context.Context, userID string) (int, error) {
	tokens, err := s.store.SessionsForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list admin credentials: %w", err)
	}

	revoked := 0
	for _, token := range tokens {
		if err := s.SignOut(ctx, token); err != nil {
			return revoked, err
		}
		revoked++
	}

	if revoked > 0 {
		s.logger.Info("Admin credentials revoked",
			zap.String("user_id", userID), zap.Int("count", revoked))
	}
	return revoked, nil
}

func (s *AdminService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// generateToken returns 32 random bytes, base64url encoded without padding.
func generateToken() (string, error) {
	b := make([]byte, adminTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate admin token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
