package service

import (
	"context"

	"go.uber.org/zap"

	"access-service/internal/clock"
	"access-service/internal/config"
	"access-service/internal/models"
)

// Stores groups the backing stores the services run on.
type Stores struct {
	Sessions  models.SessionStore
	Admin     models.AdminStore
	Counters  models.CounterStore
	Directory models.UserDirectory
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg    *config.Config
	stores Stores
	clock  clock.Clock
	logger *zap.Logger

	sessionService *SessionService
	adminService   *AdminService
	guestLimiter   *RateLimiter
	adminLimiter   *RateLimiter
}

func NewServiceFactory(cfg *config.Config, stores Stores, clk clock.Clock, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{cfg: cfg, stores: stores, clock: clk, logger: logger}
}

// SessionService returns the session service instance (singleton)
func (f *ServiceFactory) SessionService() *SessionService {
	if f.sessionService == nil {
		f.sessionService = NewSessionService(f.stores.Sessions, f.stores.Directory, f.logger.Named("sessions"))
	}
	return f.sessionService
}

func (f *ServiceFactory) AdminService() *AdminService {
	if f.adminService == nil {
		f.adminService = NewAdminService(
			f.stores.Admin,
			f.SessionService(),
			AdminServiceConfig{
				AdminEmail:    f.cfg.Admin.Email,
				SessionTTL:    f.cfg.Admin.SessionTTL,
				ReissuePolicy: f.cfg.Admin.ReissuePolicy,
			},
			f.clock,
			f.logger.Named("admin"),
		)
	}
	return f.adminService
}

func (f *ServiceFactory) GuestLimiter() *RateLimiter {
	if f.guestLimiter == nil {
		f.guestLimiter = NewGuestLimiter(f.stores.Counters, f.cfg.RateLimit.Guest, f.clock, f.logger.Named("ratelimit"))
	}
	return f.guestLimiter
}

func (f *ServiceFactory) AdminLimiter() *RateLimiter {
	if f.adminLimiter == nil {
		f.adminLimiter = NewAdminLimiter(f.stores.Counters, f.cfg.RateLimit.Admin, f.clock, f.logger.Named("ratelimit"))
	}
	return f.adminLimiter
}

func (f *ServiceFactory) Directory() models.UserDirectory {
	return f.stores.Directory
}

// StoreCounts reports the size of every store for the monitoring endpoint.
type StoreCounts struct {
	Sessions      int `json:"sessions"`
	AdminSessions int `json:"adminSessions"`
	Counters      int `json:"rateLimitCounters"`
}

func (f *ServiceFactory) StoreCounts(ctx context.Context) (StoreCounts, error) {
	var counts StoreCounts
	var err error

	if counts.Sessions, err = f.stores.Sessions.Count(ctx); err != nil {
		return counts, err
	}
	if counts.AdminSessions, err = f.stores.Admin.Count(ctx); err != nil {
		return counts, err
	}
	if counts.Counters, err = f.stores.Counters.Count(ctx); err != nil {
		return counts, err
	}
	return counts, nil
}
