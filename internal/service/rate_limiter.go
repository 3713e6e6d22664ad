package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"access-service/internal/clock"
	"access-service/internal/config"
	"access-service/internal/models"
)

const adminAction = "endpoint"

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"resetAt"`
	RetryAfter int       `json:"retryAfter,omitempty"`
}

// RateLimiter applies fixed-window rules keyed by (action, identity). Guest
// and admin limiters are separate instances with their own key namespace.
type RateLimiter struct {
	namespace string
	store     models.CounterStore
	rules     map[string]config.RateLimitRule
	clock     clock.Clock
	logger    *zap.Logger
}

// NewGuestLimiter builds the limiter for guest-facing actions, one rule per
// action.
func NewGuestLimiter(store models.CounterStore, rules map[string]config.RateLimitRule, clk clock.Clock, logger *zap.Logger) *RateLimiter {
	copied := make(map[string]config.RateLimitRule, len(rules))
	for action, rule := range rules {
		copied[action] = rule
	}
	return &RateLimiter{namespace: "guest", store: store, rules: copied, clock: clk, logger: logger}
}

// NewAdminLimiter builds the limiter shared by all admin endpoints.
func NewAdminLimiter(store models.CounterStore, rule config.RateLimitRule, clk clock.Clock, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		namespace: "admin",
		store:     store,
		rules:     map[string]config.RateLimitRule{adminAction: rule},
		clock:     clk,
		logger:    logger,
	}
}

// Rule returns the rule for action.
func (r *RateLimiter) Rule(action string) (config.RateLimitRule, bool) {
	rule, ok := r.rules[action]
	return rule, ok
}

// Check counts one request for identity against action's rule.
func (r *RateLimiter) Check(ctx context.Context, action, identity string) (Result, error) {
	rule, ok := r.rules[action]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	key := r.namespace + ":" + action + ":" + identity
	decision, err := r.store.Take(ctx, key, rule.Max, rule.Window)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", action, err)
	}

	res := Result{
		Allowed: decision.Allowed,
		Limit:   rule.Max,
		ResetAt: decision.ResetAt,
	}
	if decision.Allowed {
		res.Remaining = max(rule.Max-decision.Count, 0)
		return res, nil
	}

	res.RetryAfter = retryAfterSeconds(decision.ResetAt, r.clock.Now())
	r.logger.Debug("Rate limit exceeded",
		zap.String("limiter", r.namespace),
		zap.String("action", action),
		zap.Int("retry_after", res.RetryAfter))
	return res, nil
}

// CheckAdmin sweeps elapsed counters, then checks the shared admin rule.
// Sweep failures are logged and never fail the check.
func (r *RateLimiter) CheckAdmin(ctx context.Context, identity string) (Result, error) {
	if removed, err := r.store.Sweep(ctx); err != nil {
		r.logger.Warn("Rate limit counter sweep failed", zap.Error(err))
	} else if removed > 0 {
		r.logger.Debug("Swept rate limit counters", zap.Int("removed", removed))
	}
	return r.Check(ctx, adminAction, identity)
}

// retryAfterSeconds rounds the wait up to whole seconds. A denied caller is
// always told to wait at least one second.
func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	return max(secs, 1)
}
