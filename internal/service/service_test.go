package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"access-service/internal/clock"
	"access-service/internal/config"
	"access-service/internal/models"
	"access-service/internal/repository/memory"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

const adminEmail = "admin@example.com"

type fixture struct {
	clock     *clock.Manual
	sessions  *memory.SessionStore
	admin     *memory.AdminStore
	counters  *memory.CounterStore
	directory *memory.UserDirectory
	factory   *ServiceFactory
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	clk := clock.NewManual(epoch)

	cfg := &config.Config{
		Admin: config.AdminConfig{
			Email:         adminEmail,
			SessionTTL:    time.Hour,
			ReissuePolicy: config.ReissueAllowConcurrent,
		},
		RateLimit: config.RateLimitConfig{
			Guest: map[string]config.RateLimitRule{
				"save":  {Max: 100, Window: 15 * time.Minute},
				"email": {Max: 2, Window: time.Hour},
			},
			Admin: config.RateLimitRule{Max: 3, Window: time.Minute},
		},
	}
	for _, m := range mutate {
		m(cfg)
	}

	f := &fixture{
		clock:    clk,
		sessions: memory.NewSessionStore(24*time.Hour, clk),
		admin:    memory.NewAdminStore(),
		counters: memory.NewCounterStore(clk),
		directory: memory.NewUserDirectory(
			&models.User{UserID: "admin-1", Email: "Admin@Example.com", Name: "Ada"},
			&models.User{UserID: "user-1", Email: "writer@example.com", Name: "Wes"},
		),
	}
	f.factory = NewServiceFactory(cfg, Stores{
		Sessions:  f.sessions,
		Admin:     f.admin,
		Counters:  f.counters,
		Directory: f.directory,
	}, clk, zap.NewNop())
	return f
}

func (f *fixture) baseSession(t *testing.T, userID string) *models.Session {
	t.Helper()
	s, err := f.factory.SessionService().Create(context.Background(), userID, "203.0.113.1", "agent")
	require.NoError(t, err)
	return s
}
