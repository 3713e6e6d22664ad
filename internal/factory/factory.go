package factory

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"access-service/internal/access"
	"access-service/internal/audit"
	"access-service/internal/client"
	"access-service/internal/clock"
	"access-service/internal/config"
	"access-service/internal/handler"
	"access-service/internal/models"
	"access-service/internal/repository/memory"
	redisrepo "access-service/internal/repository/redis"
	"access-service/internal/repository/scylla"
	"access-service/internal/service"
	"access-service/internal/tls"
	"access-service/internal/util"
)

const healthCheckTimeout = 5 * time.Second

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	clock      clock.Clock
	logger     *zap.Logger
	tlsManager *tls.Manager

	// Clients
	redisClient   *client.RedisClient
	scyllaClient  *scylla.ScyllaClient
	kafkaProducer *client.KafkaProducer

	stores         service.Stores
	serviceFactory *service.ServiceFactory
	auditLog       *audit.Log
	detector       *audit.Detector
	guard          *access.Guard

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory builds every dependency described by cfg. Redis is required
// when it backs the stores; Scylla and Kafka degrade outside production.
func NewFactory(cfg *config.Config) (*Factory, error) {
	f := &Factory{
		config: cfg,
		clock:  clock.Real{},
		logger: util.Get(),
		closed: make(chan struct{}),
	}

	if cfg.Server.TLS.Enabled {
		f.tlsManager = tls.NewManager(cfg.Server.TLS, f.logger.Named("tls"))
	}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeStores(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize stores: %w", err)
	}
	f.initializeAccessCore()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("storage_backend", cfg.Storage.Backend),
		util.Bool("scylla_directory", f.scyllaClient != nil),
		util.Bool("kafka_alerts", f.kafkaProducer != nil),
		util.Bool("tls_enabled", cfg.Server.TLS.Enabled),
	)
	return f, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.config.Storage.Backend == config.BackendRedis {
		rc, err := client.NewRedisClient(f.config, f.logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisClient = rc
		if err := rc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis health check: %w", err)
		}
		util.Info("Redis client initialized and healthy")
	}

	if f.config.Scylla.Enabled {
		sc, err := scylla.NewScyllaClient(f.config, f.logger)
		if err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("scylla: %w", err)
			}
			util.Warn("ScyllaDB unavailable - using the seeded in-memory directory", util.ErrorField(err))
		} else {
			f.scyllaClient = sc
			util.Info("ScyllaDB client initialized")
		}
	}

	if len(f.config.Kafka.Brokers) > 0 {
		producer, err := client.NewKafkaProducer(f.config, f.logger)
		if err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without security alerts", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized", util.String("topic", f.config.Kafka.AlertTopic))
		}
	}

	return nil
}

func (f *Factory) initializeStores() error {
	switch f.config.Storage.Backend {
	case config.BackendRedis:
		f.stores.Sessions = redisrepo.NewSessionStore(f.redisClient, f.config.Session.TTL, f.clock)
		f.stores.Admin = redisrepo.NewAdminStore(f.redisClient, f.clock)
		f.stores.Counters = redisrepo.NewCounterStore(f.redisClient, f.clock)
	default:
		f.stores.Sessions = memory.NewSessionStore(f.config.Session.TTL, f.clock)
		f.stores.Admin = memory.NewAdminStore()
		f.stores.Counters = memory.NewCounterStore(f.clock)
	}

	if f.scyllaClient != nil {
		f.stores.Directory = scylla.NewUserDirectory(f.scyllaClient)
		return nil
	}

	directory, err := f.seededDirectory()
	if err != nil {
		return err
	}
	f.stores.Directory = directory
	return nil
}

// seededDirectory builds the in-memory directory from DIRECTORY_SEED. In
// development the administrator is added when the seed does not list them.
func (f *Factory) seededDirectory() (*memory.UserDirectory, error) {
	users, err := memory.ParseSeed(f.config.Directory.Seed)
	if err != nil {
		return nil, fmt.Errorf("directory seed: %w", err)
	}
	directory := memory.NewUserDirectory(users...)

	adminEmail := strings.TrimSpace(f.config.Admin.Email)
	if f.config.IsDevelopment() && adminEmail != "" {
		if _, err := directory.FindByEmail(context.Background(), adminEmail); err != nil {
			directory.Put(&models.User{
				UserID:    "admin",
				Email:     adminEmail,
				Name:      "Administrator",
				CreatedAt: f.clock.Now(),
			})
		}
	}
	return directory, nil
}

func (f *Factory) initializeAccessCore() {
	var notifier audit.Notifier = audit.NopNotifier{}
	if f.kafkaProducer != nil {
		notifier = audit.NewKafkaNotifier(f.kafkaProducer)
	}

	f.auditLog = audit.NewLog(audit.Options{
		MaxEntries: f.config.Audit.MaxEntries,
		Clock:      f.clock,
		Notifier:   notifier,
		Logger:     f.logger.Named("audit"),
	})
	f.detector = audit.NewDetector(f.auditLog, audit.DetectorConfig{
		Window:              f.config.Audit.SuspiciousWindow,
		FailedThreshold:     f.config.Audit.FailedThreshold,
		TotalThreshold:      f.config.Audit.TotalThreshold,
		PrivilegedThreshold: f.config.Audit.PrivilegedThreshold,
	}, f.clock, notifier, f.logger.Named("detector"))

	f.serviceFactory = service.NewServiceFactory(f.config, f.stores, f.clock, f.logger)
	f.guard = access.NewGuard(
		f.serviceFactory.AdminService(),
		f.serviceFactory.AdminLimiter(),
		f.auditLog,
		f.detector,
		f.logger.Named("guard"),
	)
}

// Router assembles the HTTP surface.
func (f *Factory) Router() http.Handler {
	sf := f.serviceFactory
	handlers := handler.Handlers{
		Sessions: handler.NewSessionHandler(
			sf.SessionService(),
			f.config.Session.CookieName,
			f.config.Server.TLS.Enabled || f.config.IsProduction(),
			f.config.IsDevelopment(),
			f.logger,
		),
		Guest: handler.NewGuestHandler(sf.GuestLimiter(), f.logger),
		Admin: handler.NewAdminHandler(
			sf.AdminService(),
			f.guard,
			f.auditLog,
			f.detector,
			sf.Directory(),
			sf,
			handler.AdminHandlerConfig{
				CookieName:  f.config.Session.CookieName,
				TokenHeader: f.config.Admin.TokenHeader,
			},
			f.logger,
		),
	}
	return handler.NewRouter(f.config, handlers, handler.HealthFunc(f.Readiness), f.logger)
}

// ==============================
// Health Checks
// ==============================

// HealthCheck probes every initialized client concurrently and returns the
// failures by component name.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	checks := map[string]func(context.Context) error{}
	if f.redisClient != nil {
		checks["redis"] = f.redisClient.HealthCheck
	} else if f.config.Storage.Backend == config.BackendRedis {
		checks["redis"] = func(context.Context) error { return fmt.Errorf("redis client not initialized") }
	}
	if f.scyllaClient != nil {
		checks["scylla"] = f.scyllaClient.HealthCheck
	}
	if f.kafkaProducer != nil {
		checks["kafka"] = f.kafkaProducer.HealthCheck
	}

	var (
		mu           sync.Mutex
		healthErrors = make(map[string]error)
		g            errgroup.Group
	)
	for name, check := range checks {
		name, check := name, check
		g.Go(func() error {
			if err := check(ctx); err != nil {
				mu.Lock()
				healthErrors[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return healthErrors
}

// Readiness is HealthCheck without the alert stream, which is optional.
func (f *Factory) Readiness(ctx context.Context) map[string]error {
	healthErrors := f.HealthCheck(ctx)
	if err, ok := healthErrors["kafka"]; ok {
		util.Warn("Kafka alert stream unhealthy", util.ErrorField(err))
		delete(healthErrors, "kafka")
	}
	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.Readiness(ctx)) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

func (f *Factory) AuditLog() *audit.Log {
	return f.auditLog
}
