package memory

import (
	"context"
	"sync"
	"time"

	"access-service/internal/clock"
	"access-service/internal/models"
)

// CounterStore holds fixed-window rate limit counters. Take is atomic per
// store because the whole read-reset-or-increment runs under one lock.
type CounterStore struct {
	mu       sync.Mutex
	counters map[string]*models.RateLimitCounter
	clock    clock.Clock
}

func NewCounterStore(clk clock.Clock) *CounterStore {
	return &CounterStore{
		counters: make(map[string]*models.RateLimitCounter),
		clock:    clk,
	}
}

func (s *CounterStore) Take(ctx context.Context, key string, max int, window time.Duration) (models.Decision, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, exists := s.counters[key]
	if !exists || now.After(counter.WindowResetAt) {
		counter = &models.RateLimitCounter{
			Key:           key,
			Count:         1,
			WindowResetAt: now.Add(window),
		}
		s.counters[key] = counter
		return models.Decision{Allowed: true, Count: 1, ResetAt: counter.WindowResetAt}, nil
	}

	if counter.Count >= max {
		return models.Decision{Allowed: false, Count: counter.Count, ResetAt: counter.WindowResetAt}, nil
	}

	counter.Count++
	return models.Decision{Allowed: true, Count: counter.Count, ResetAt: counter.WindowResetAt}, nil
}

func (s *CounterStore) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, counter := range s.counters {
		if now.After(counter.WindowResetAt) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed, nil
}

func (s *CounterStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters), nil
}
