package models

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Session is a base, non-privileged session created at primary login.
type Session struct {
	SessionID      string    `json:"sessionId" db:"session_id"`
	UserID         string    `json:"userId" db:"user_id"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	ExpiresAt      time.Time `json:"expiresAt" db:"expires_at"`
	LastAccessedAt time.Time `json:"lastAccessedAt" db:"last_accessed_at"`
	IsActive       bool      `json:"isActive" db:"is_active"`
	IPAddress      string    `json:"ipAddress" db:"ip_address"`
	UserAgent      string    `json:"userAgent" db:"user_agent"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// SessionStore maps opaque session identifiers to base sessions. Expiry is
// lazy: Get removes an expired record and reports ErrSessionNotFound.
type SessionStore interface {
	Create(ctx context.Context, userID, ip, userAgent string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Touch(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
	Count(ctx context.Context) (int, error)
}
