package tls

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"access-service/internal/config"
)

// Manager supplies server certificates. Sources are tried in order:
// ACME (when AutoCert is on), the configured key pair, then a self-signed
// development certificate.
type Manager struct {
	cfg      config.TLSConfig
	autoCert *autocert.Manager
	logger   *zap.Logger

	mu       sync.Mutex
	fallback *tls.Certificate
}

func NewManager(cfg config.TLSConfig, logger *zap.Logger) *Manager {
	m := &Manager{cfg: cfg, logger: logger}
	if cfg.Enabled && cfg.AutoCert {
		m.setupAutoCert()
	}
	return m
}

func (m *Manager) setupAutoCert() {
	if err := os.MkdirAll(m.cfg.AutoCertDir, 0o700); err != nil {
		m.logger.Warn("Could not create autocert directory", zap.Error(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.cfg.Domain),
		Cache:      autocert.DirCache(m.cfg.AutoCertDir),
		Email:      m.cfg.Email,
	}
	m.logger.Info("AutoCert configured",
		zap.String("domain", m.cfg.Domain),
		zap.String("cache_dir", m.cfg.AutoCertDir))
}

func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		m.logger.Warn("AutoCert certificate unavailable", zap.Error(err))
	}

	if m.cfg.CertFile != "" && m.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
		if err == nil {
			return &cert, nil
		}
		m.logger.Warn("Failed to load TLS key pair", zap.String("cert_file", m.cfg.CertFile), zap.Error(err))
	}

	return m.selfSigned()
}

func (m *Manager) selfSigned() (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fallback != nil {
		return m.fallback, nil
	}

	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if m.cfg.Domain != "" && m.cfg.Domain != "localhost" {
		hosts = append([]string{m.cfg.Domain}, hosts...)
	}

	cert, err := NewDevCertGenerator(m.cfg.AutoCertDir, m.logger).GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("generate self-signed certificate: %w", err)
	}
	m.fallback = &cert
	return m.fallback, nil
}

// ServerConfig returns the tls.Config for the HTTPS listener.
func (m *Manager) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

// AutoCert returns the ACME manager, or nil when AutoCert is off.
func (m *Manager) AutoCert() *autocert.Manager {
	return m.autoCert
}
