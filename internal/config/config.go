package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	BackendMemory = "memory"
	BackendRedis  = "redis"

	ReissueAllowConcurrent = "allow-concurrent"
	ReissueRevokePrevious  = "revoke-previous"
)

// Guest-facing actions that carry their own rate limit rule.
var GuestActions = []string{"download", "email", "export", "share", "save"}

type Config struct {
	Environment string

	Server    ServerConfig
	Logging   LoggingConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Scylla    ScyllaConfig
	Session   SessionConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Directory DirectoryConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
	TLS            TLSConfig
}

// TLSConfig controls in-process TLS termination. With AutoCert the server
// also answers ACME challenges on :80.
type TLSConfig struct {
	Enabled     bool
	Port        int
	AutoCert    bool
	Domain      string
	Email       string
	CertFile    string
	KeyFile     string
	AutoCertDir string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// StorageConfig selects where sessions, admin credentials and rate limit
// counters live. The memory backend is process-local.
type StorageConfig struct {
	Backend string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers    []string
	AlertTopic string
}

type ScyllaConfig struct {
	Enabled  bool
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type SessionConfig struct {
	TTL        time.Duration
	CookieName string
}

type AdminConfig struct {
	Email         string
	SessionTTL    time.Duration
	TokenHeader   string
	ReissuePolicy string
}

// RateLimitRule is a fixed window: at most Max requests per Window.
type RateLimitRule struct {
	Max    int
	Window time.Duration
}

func (r RateLimitRule) String() string {
	return fmt.Sprintf("%d/%s", r.Max, r.Window)
}

type RateLimitConfig struct {
	Guest map[string]RateLimitRule
	Admin RateLimitRule
}

type AuditConfig struct {
	MaxEntries          int
	SuspiciousWindow    time.Duration
	FailedThreshold     int
	TotalThreshold      int
	PrivilegedThreshold int
}

// DirectoryConfig seeds the in-memory user directory. Each seed entry is
// "id:email:name".
type DirectoryConfig struct {
	Seed []string
}

var defaultGuestRules = map[string]RateLimitRule{
	"download": {Max: 20, Window: 15 * time.Minute},
	"email":    {Max: 5, Window: time.Hour},
	"export":   {Max: 10, Window: 15 * time.Minute},
	"share":    {Max: 10, Window: time.Hour},
	"save":     {Max: 100, Window: 15 * time.Minute},
}

// LoadConfig reads .env when present and builds the configuration from the
// environment. Malformed values fall back to defaults; Validate reports
// inconsistent settings.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", EnvDevelopment),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", ""),
			Port:           getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://localhost:*"}),
			TLS: TLSConfig{
				Enabled:     getEnvBool("TLS_ENABLED", false),
				Port:        getEnvInt("TLS_PORT", 8443),
				AutoCert:    getEnvBool("TLS_AUTOCERT", false),
				Domain:      getEnv("TLS_DOMAIN", "localhost"),
				Email:       getEnv("TLS_EMAIL", ""),
				CertFile:    getEnv("TLS_CERT_FILE", ""),
				KeyFile:     getEnv("TLS_KEY_FILE", ""),
				AutoCertDir: getEnv("TLS_AUTOCERT_DIR", "./certs"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", BackendMemory),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvList("KAFKA_BROKERS", nil),
			AlertTopic: getEnv("KAFKA_ALERT_TOPIC", "access-security-alerts"),
		},
		Scylla: ScyllaConfig{
			Enabled:  getEnvBool("SCYLLA_ENABLED", false),
			Nodes:    getEnvList("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "authoring"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Session: SessionConfig{
			TTL:        getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			CookieName: getEnv("SESSION_COOKIE_NAME", "session_id"),
		},
		Admin: AdminConfig{
			Email:         getEnv("ADMIN_EMAIL", ""),
			SessionTTL:    getEnvDuration("ADMIN_SESSION_TTL", 2*time.Hour),
			TokenHeader:   getEnv("ADMIN_TOKEN_HEADER", "X-Admin-Token"),
			ReissuePolicy: getEnv("ADMIN_REISSUE_POLICY", ReissueAllowConcurrent),
		},
		RateLimit: RateLimitConfig{
			Guest: make(map[string]RateLimitRule, len(GuestActions)),
			Admin: getEnvRule("RATE_LIMIT_ADMIN", RateLimitRule{Max: 100, Window: 15 * time.Minute}),
		},
		Audit: AuditConfig{
			MaxEntries:          getEnvInt("AUDIT_MAX_ENTRIES", 10000),
			SuspiciousWindow:    getEnvDuration("AUDIT_SUSPICIOUS_WINDOW", 5*time.Minute),
			FailedThreshold:     getEnvInt("AUDIT_SUSPICIOUS_FAILED", 5),
			TotalThreshold:      getEnvInt("AUDIT_SUSPICIOUS_TOTAL", 50),
			PrivilegedThreshold: getEnvInt("AUDIT_SUSPICIOUS_PRIVILEGED", 10),
		},
		Directory: DirectoryConfig{
			Seed: getEnvList("DIRECTORY_SEED", nil),
		},
	}

	for _, action := range GuestActions {
		key := "RATE_LIMIT_GUEST_" + strings.ToUpper(action)
		cfg.RateLimit.Guest[action] = getEnvRule(key, defaultGuestRules[action])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("config: STORAGE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.Storage.Backend))
	}

	switch c.Admin.ReissuePolicy {
	case ReissueAllowConcurrent, ReissueRevokePrevious:
	default:
		errs = append(errs, fmt.Errorf("config: ADMIN_REISSUE_POLICY must be %q or %q, got %q", ReissueAllowConcurrent, ReissueRevokePrevious, c.Admin.ReissuePolicy))
	}

	if c.IsProduction() && c.Admin.Email == "" {
		errs = append(errs, errors.New("config: ADMIN_EMAIL must be set in production"))
	}
	if c.Session.TTL <= 0 || c.Admin.SessionTTL <= 0 {
		errs = append(errs, errors.New("config: session TTLs must be positive"))
	}
	if c.Audit.MaxEntries <= 0 {
		errs = append(errs, errors.New("config: AUDIT_MAX_ENTRIES must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: SERVER_PORT out of range: %d", c.Server.Port))
	}
	if c.Server.TLS.Enabled && c.Server.TLS.AutoCert && c.Server.TLS.Domain == "" {
		errs = append(errs, errors.New("config: TLS_DOMAIN is required with TLS_AUTOCERT"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// GetServerAddress returns the listen address, using the TLS port when TLS
// is enabled.
func (c *Config) GetServerAddress() string {
	if c.Server.TLS.Enabled {
		return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.TLS.Port)
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ParseRule parses a rate limit rule written as "<max>/<duration>", e.g. "100/15m".
func ParseRule(s string) (RateLimitRule, error) {
	maxStr, windowStr, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return RateLimitRule{}, fmt.Errorf("invalid rate limit rule %q", s)
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil || max <= 0 {
		return RateLimitRule{}, fmt.Errorf("invalid rate limit max in %q", s)
	}
	window, err := time.ParseDuration(windowStr)
	if err != nil || window <= 0 {
		return RateLimitRule{}, fmt.Errorf("invalid rate limit window in %q", s)
	}
	return RateLimitRule{Max: max, Window: window}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvRule(key string, defaultValue RateLimitRule) RateLimitRule {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	rule, err := ParseRule(raw)
	if err != nil {
		return defaultValue
	}
	return rule
}
