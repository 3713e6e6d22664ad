package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"access-service/internal/client"
	"access-service/internal/clock"
	"access-service/internal/models"
	"access-service/internal/util"
)

// putTokenScript binds a token to an existing admin session and indexes it
// under the session's owner in one step.
// KEYS: session, token. ARGV: session id, ttl ms, user index prefix, token.
var putTokenScript = goredis.NewScript(`
local uid = redis.call('HGET', KEYS[1], 'user_id')
if not uid then
	return 0
end
redis.call('HSET', KEYS[2], 'session_id', ARGV[1], 'user_id', uid)
redis.call('PEXPIRE', KEYS[2], ARGV[2])
redis.call('SADD', ARGV[3] .. uid, ARGV[4])
return 1
`)

// deleteTokenScript removes a token and its entry in the owner index.
// KEYS: token. ARGV: user index prefix, token.
var deleteTokenScript = goredis.NewScript(`
local uid = redis.call('HGET', KEYS[1], 'user_id')
redis.call('DEL', KEYS[1])
if uid then
	redis.call('SREM', ARGV[1] .. uid, ARGV[2])
end
return 1
`)

var touchAdminScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'last_accessed_at', ARGV[1])
return 1
`)

type AdminStore struct {
	client *client.RedisClient
	clock  clock.Clock
}

func NewAdminStore(client *client.RedisClient, clk clock.Clock) *AdminStore {
	return &AdminStore{client: client, clock: clk}
}

func (s *AdminStore) CreateSession(ctx context.Context, session *models.AdminSession) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := adminSessionPrefix + session.SessionID
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", session.UserID,
		"permissions", strings.Join(session.Permissions.Strings(), ","),
		"created_at", msString(session.CreatedAt),
		"expires_at", msString(session.ExpiresAt),
		"last_accessed_at", msString(session.LastAccessedAt),
	)
	pipe.Expire(ctx, key, retention(session.ExpiresAt, s.clock.Now()))
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to create admin session",
			zap.String("session_id", session.SessionID),
			zap.String("user_id", session.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create admin session: %w", err)
	}
	return nil
}

func (s *AdminStore) GetSession(ctx context.Context, sessionID string) (*models.AdminSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, adminSessionPrefix+sessionID)
	if err != nil {
		util.Error("Failed to get admin session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get admin session: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrAdminSessionNotFound
	}
	return decodeAdminSession(sessionID, fields)
}

func (s *AdminStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	updated, err := touchAdminScript.Run(ctx, s.client.Client,
		[]string{adminSessionPrefix + sessionID}, msString(at)).Int()
	if err != nil {
		util.Error("Failed to touch admin session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to touch admin session: %w", err)
	}
	if updated == 0 {
		return models.ErrAdminSessionNotFound
	}
	return nil
}

func (s *AdminStore) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, adminSessionPrefix+sessionID); err != nil {
		util.Error("Failed to delete admin session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to delete admin session: %w", err)
	}
	return nil
}

func (s *AdminStore) PutToken(ctx context.Context, token, sessionID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ok, err := putTokenScript.Run(ctx, s.client.Client,
		[]string{adminSessionPrefix + sessionID, adminTokenPrefix + token},
		sessionID, (ttl + retentionGrace).Milliseconds(), adminUserTokensPrefix, token).Int()
	if err != nil {
		util.Error("Failed to store admin token", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to store admin token: %w", err)
	}
	if ok == 0 {
		return models.ErrAdminSessionNotFound
	}
	return nil
}

func (s *AdminStore) ResolveToken(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sessionID, err := s.client.Client.HGet(ctx, adminTokenPrefix+token, "session_id").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", models.ErrAdminTokenNotFound
		}
		util.Error("Failed to resolve admin token", zap.Error(err))
		return "", fmt.Errorf("failed to resolve admin token: %w", err)
	}
	return sessionID, nil
}

func (s *AdminStore) DeleteToken(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := deleteTokenScript.Run(ctx, s.client.Client,
		[]string{adminTokenPrefix + token}, adminUserTokensPrefix, token).Err(); err != nil {
		util.Error("Failed to delete admin token", zap.Error(err))
		return fmt.Errorf("failed to delete admin token: %w", err)
	}
	return nil
}

// SessionsForUser returns the user's live tokens, pruning index entries
// whose token key has already expired.
func (s *AdminStore) SessionsForUser(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	indexKey := adminUserTokensPrefix + userID
	members, err := s.client.SMembers(ctx, indexKey)
	if err != nil {
		util.Error("Failed to list admin tokens", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list admin tokens: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	exists := make([]*goredis.IntCmd, len(members))
	for i, token := range members {
		exists[i] = pipe.Exists(ctx, adminTokenPrefix+token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check admin tokens: %w", err)
	}

	live := make([]string, 0, len(members))
	var stale []interface{}
	for i, token := range members {
		if exists[i].Val() > 0 {
			live = append(live, token)
		} else {
			stale = append(stale, token)
		}
	}
	if len(stale) > 0 {
		if err := s.client.Client.SRem(ctx, indexKey, stale...).Err(); err != nil {
			util.Warn("Failed to prune admin token index", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return live, nil
}

func (s *AdminStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	n, err := s.client.CountKeys(ctx, adminSessionPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to count admin sessions: %w", err)
	}
	return n, nil
}

func decodeAdminSession(sessionID string, fields map[string]string) (*models.AdminSession, error) {
	session := &models.AdminSession{
		SessionID:   sessionID,
		UserID:      fields["user_id"],
		Permissions: models.NewPermissionSet(),
	}
	if raw := fields["permissions"]; raw != "" {
		for _, p := range strings.Split(raw, ",") {
			session.Permissions.Add(models.Permission(p))
		}
	}

	var err error
	if session.CreatedAt, err = parseMS(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("corrupt admin session %s: created_at: %w", sessionID, err)
	}
	if session.ExpiresAt, err = parseMS(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("corrupt admin session %s: expires_at: %w", sessionID, err)
	}
	if session.LastAccessedAt, err = parseMS(fields["last_accessed_at"]); err != nil {
		return nil, fmt.Errorf("corrupt admin session %s: last_accessed_at: %w", sessionID, err)
	}
	return session, nil
}
