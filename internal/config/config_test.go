package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("RATE_LIMIT_GUEST_SAVE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, ":8080", cfg.GetServerAddress())
	assert.Equal(t, 10000, cfg.Audit.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.Audit.SuspiciousWindow)
	assert.Equal(t, ReissueAllowConcurrent, cfg.Admin.ReissuePolicy)
	assert.Equal(t, "X-Admin-Token", cfg.Admin.TokenHeader)
	assert.Equal(t, RateLimitRule{Max: 100, Window: 15 * time.Minute}, cfg.RateLimit.Guest["save"])
	assert.Len(t, cfg.RateLimit.Guest, len(GuestActions))
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RATE_LIMIT_GUEST_SAVE", "3/1m")
	t.Setenv("RATE_LIMIT_ADMIN", "7/30s")
	t.Setenv("AUDIT_SUSPICIOUS_FAILED", "2")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, RateLimitRule{Max: 3, Window: time.Minute}, cfg.RateLimit.Guest["save"])
	assert.Equal(t, RateLimitRule{Max: 7, Window: 30 * time.Second}, cfg.RateLimit.Admin)
	assert.Equal(t, 2, cfg.Audit.FailedThreshold)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_InvalidRuleFallsBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_GUEST_EMAIL", "lots")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultGuestRules["email"], cfg.RateLimit.Guest["email"])
}

func TestLoadConfig_ProductionRequiresAdminEmail(t *testing.T) {
	t.Setenv("APP_ENV", EnvProduction)
	t.Setenv("ADMIN_EMAIL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_EMAIL")
}

func TestValidate_RejectsUnknownBackendAndPolicy(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("ADMIN_REISSUE_POLICY", "sometimes")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_BACKEND")
	assert.Contains(t, err.Error(), "ADMIN_REISSUE_POLICY")
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		in      string
		want    RateLimitRule
		wantErr bool
	}{
		{in: "100/15m", want: RateLimitRule{Max: 100, Window: 15 * time.Minute}},
		{in: " 5/1h ", want: RateLimitRule{Max: 5, Window: time.Hour}},
		{in: "0/1m", wantErr: true},
		{in: "5", wantErr: true},
		{in: "5/forever", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRule(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig_TLS(t *testing.T) {
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_PORT", "9443")
	t.Setenv("SERVER_HOST", "127.0.0.1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Server.TLS.Enabled)
	assert.Equal(t, "127.0.0.1:9443", cfg.GetServerAddress())

	cfg.Server.TLS.AutoCert = true
	cfg.Server.TLS.Domain = ""
	require.Error(t, cfg.Validate())
}
