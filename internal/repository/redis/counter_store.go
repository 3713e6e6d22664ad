package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"access-service/internal/client"
	"access-service/internal/clock"
	"access-service/internal/models"
	"access-service/internal/util"
)

// fixedWindowScript is the atomic read-then-reset-or-increment for one
// counter. Times are unix milliseconds supplied by the caller's clock.
// KEYS: counter. ARGV: now, window ms, max, key ttl ms.
// Returns {allowed, count, reset_at}.
var fixedWindowScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'count', 'reset_at')
local count = tonumber(state[1])
local reset_at = tonumber(state[2])

if count == nil or reset_at == nil or now > reset_at then
	reset_at = now + window
	redis.call('HSET', KEYS[1], 'count', 1, 'reset_at', reset_at)
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	return {1, 1, reset_at}
end

if count >= limit then
	return {0, count, reset_at}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, reset_at}
`)

// CounterStore keeps fixed-window counters in redis so limits hold across
// instances.
type CounterStore struct {
	client *client.RedisClient
	clock  clock.Clock
}

func NewCounterStore(client *client.RedisClient, clk clock.Clock) *CounterStore {
	return &CounterStore{client: client, clock: clk}
}

func (s *CounterStore) Take(ctx context.Context, key string, max int, window time.Duration) (models.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := s.clock.Now().UnixMilli()
	res, err := fixedWindowScript.Run(ctx, s.client.Client,
		[]string{rateLimitPrefix + key},
		now, window.Milliseconds(), max, (window + retentionGrace).Milliseconds()).Int64Slice()
	if err != nil {
		util.Error("Failed to execute fixed window rate limit", zap.String("key", key), zap.Error(err))
		return models.Decision{}, fmt.Errorf("failed to execute fixed window rate limit: %w", err)
	}
	if len(res) != 3 {
		return models.Decision{}, errors.New("unexpected result format from fixed window script")
	}

	return models.Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		ResetAt: time.UnixMilli(res[2]).UTC(),
	}, nil
}

// sweepScript deletes each counter whose window has elapsed, re-reading
// reset_at under the script so a window reset by Take in the meantime is kept.
// KEYS: counters. ARGV: now. Returns the number deleted.
var sweepScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local removed = 0
for _, key in ipairs(KEYS) do
	local reset_at = tonumber(redis.call('HGET', key, 'reset_at'))
	if reset_at ~= nil and now > reset_at then
		redis.call('DEL', key)
		removed = removed + 1
	end
end
return removed
`)

const sweepBatch = 500

// Sweep deletes counters whose window has elapsed by the store clock. Keys
// also carry a TTL, so this only bounds memory sooner.
func (s *CounterStore) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	keys, err := s.client.ScanAll(ctx, rateLimitPrefix+"*", sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to scan rate limit counters: %w", err)
	}
	return s.sweepKeys(ctx, keys)
}

func (s *CounterStore) sweepKeys(ctx context.Context, keys []string) (int, error) {
	now := s.clock.Now().UnixMilli()
	removed := 0
	for start := 0; start < len(keys); start += sweepBatch {
		batch := keys[start:min(start+sweepBatch, len(keys))]
		n, err := sweepScript.Run(ctx, s.client.Client, batch, now).Int()
		if err != nil && !errors.Is(err, goredis.Nil) {
			util.Error("Failed to sweep rate limit counters", zap.Int("count", len(batch)), zap.Error(err))
			return removed, fmt.Errorf("failed to sweep rate limit counters: %w", err)
		}
		removed += n
	}
	return removed, nil
}

func (s *CounterStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	n, err := s.client.CountKeys(ctx, rateLimitPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to count rate limit counters: %w", err)
	}
	return n, nil
}
