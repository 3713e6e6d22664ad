package models

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAdminSessionNotFound = errors.New("admin session not found")
	ErrAdminTokenNotFound   = errors.New("admin token not found")
)

type AdminSession struct {
	SessionID      string        `json:"sessionId" db:"session_id"`
	UserID         string        `json:"userId" db:"user_id"`
	Permissions    PermissionSet `json:"permissions" db:"permissions"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
	ExpiresAt      time.Time     `json:"expiresAt" db:"expires_at"`
	LastAccessedAt time.Time     `json:"lastAccessedAt" db:"last_accessed_at"`
}

func (s *AdminSession) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// AdminStore holds admin sessions and the bearer tokens pointing at them.
// A token resolves to at most one session id.
type AdminStore interface {
	CreateSession(ctx context.Context, session *AdminSession) error
	GetSession(ctx context.Context, sessionID string) (*AdminSession, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error

	PutToken(ctx context.Context, token, sessionID string, ttl time.Duration) error
	ResolveToken(ctx context.Context, token string) (string, error)
	DeleteToken(ctx context.Context, token string) error

	// SessionsForUser returns the tokens currently issued to userID.
	SessionsForUser(ctx context.Context, userID string) ([]string, error)
	Count(ctx context.Context) (int, error)
}
