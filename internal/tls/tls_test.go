package tls

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"access-service/internal/config"
)

func leaf(t *testing.T, cert tls.Certificate) *x509.Certificate {
	t.Helper()
	require.NotEmpty(t, cert.Certificate)
	l, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return l
}

func TestDevCertGenerator_GeneratesAndReuses(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir, zap.NewNop())

	first, err := gen.GenerateCert([]string{"localhost", "127.0.0.1"})
	require.NoError(t, err)

	l := leaf(t, first)
	assert.Contains(t, l.DNSNames, "localhost")
	require.Len(t, l.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", l.IPAddresses[0].String())

	info, err := os.Stat(filepath.Join(dir, "dev-key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)
	assert.Equal(t, l.SerialNumber, leaf(t, second).SerialNumber, "valid cached pair is reused")
}

func TestDevCertGenerator_RegeneratesExpired(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir, zap.NewNop())

	first, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)

	gen.now = func() time.Time { return time.Now().Add(2 * devCertValidity) }
	second, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)
	assert.NotEqual(t, leaf(t, first).SerialNumber, leaf(t, second).SerialNumber)
}

func TestManager_FallsBackToSelfSigned(t *testing.T) {
	m := NewManager(config.TLSConfig{
		Enabled:     true,
		Domain:      "docs.example.com",
		CertFile:    "/nonexistent/cert.pem",
		KeyFile:     "/nonexistent/key.pem",
		AutoCertDir: t.TempDir(),
	}, zap.NewNop())
	assert.Nil(t, m.AutoCert())

	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "docs.example.com"})
	require.NoError(t, err)
	assert.Contains(t, leaf(t, *cert).DNSNames, "docs.example.com")

	again, err := m.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Same(t, cert, again)
}

func TestManager_ServerConfig(t *testing.T) {
	m := NewManager(config.TLSConfig{AutoCertDir: t.TempDir()}, zap.NewNop())
	cfg := m.ServerConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, []string{"h2", "http/1.1"}, cfg.NextProtos)
	assert.NotNil(t, cfg.GetCertificate)
}
