package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"access-service/internal/client"
	"access-service/internal/clock"
	"access-service/internal/models"
	"access-service/internal/util"
)

// touchScript updates last_accessed_at only when the session still exists,
// so a concurrent Delete is never resurrected.
var touchScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'last_accessed_at', ARGV[1])
return 1
`)

// SessionStore keeps base sessions as redis hashes so every instance behind
// the load balancer sees the same sessions.
type SessionStore struct {
	client *client.RedisClient
	ttl    time.Duration
	clock  clock.Clock
}

func NewSessionStore(client *client.RedisClient, ttl time.Duration, clk clock.Clock) *SessionStore {
	return &SessionStore{client: client, ttl: ttl, clock: clk}
}

func (s *SessionStore) Create(ctx context.Context, userID, ip, userAgent string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

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

	key := sessionPrefix + session.SessionID
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", session.UserID,
		"created_at", msString(session.CreatedAt),
		"expires_at", msString(session.ExpiresAt),
		"last_accessed_at", msString(session.LastAccessedAt),
		"is_active", strconv.FormatBool(session.IsActive),
		"ip_address", session.IPAddress,
		"user_agent", session.UserAgent,
	)
	pipe.Expire(ctx, key, retention(session.ExpiresAt, now))
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to create session", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// Truncate to the stored precision so callers see what Get returns.
	session.CreatedAt = session.CreatedAt.Truncate(time.Millisecond)
	session.ExpiresAt = session.ExpiresAt.Truncate(time.Millisecond)
	session.LastAccessedAt = session.LastAccessedAt.Truncate(time.Millisecond)
	return session, nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := sessionPrefix + sessionID
	fields, err := s.client.HGetAll(ctx, key)
	if err != nil {
		util.Error("Failed to get session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrSessionNotFound
	}

	session, err := decodeSession(sessionID, fields)
	if err != nil {
		return nil, err
	}

	if session.Expired(s.clock.Now()) {
		if err := s.client.Del(ctx, key); err != nil {
			util.Warn("Failed to delete expired session", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) Touch(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	updated, err := touchScript.Run(ctx, s.client.Client,
		[]string{sessionPrefix + sessionID}, msString(s.clock.Now())).Int()
	if err != nil {
		util.Error("Failed to touch session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if updated == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, sessionPrefix+sessionID); err != nil {
		util.Error("Failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	n, err := s.client.CountKeys(ctx, sessionPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

func decodeSession(sessionID string, fields map[string]string) (*models.Session, error) {
	session := &models.Session{
		SessionID: sessionID,
		UserID:    fields["user_id"],
		IPAddress: fields["ip_address"],
		UserAgent: fields["user_agent"],
		IsActive:  fields["is_active"] == "true",
	}

	var err error
	if session.CreatedAt, err = parseMS(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("corrupt session %s: created_at: %w", sessionID, err)
	}
	if session.ExpiresAt, err = parseMS(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("corrupt session %s: expires_at: %w", sessionID, err)
	}
	if session.LastAccessedAt, err = parseMS(fields["last_accessed_at"]); err != nil {
		return nil, fmt.Errorf("corrupt session %s: last_accessed_at: %w", sessionID, err)
	}
	return session, nil
}
