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
)

func TestDisabledReturnsNil(t *testing.T) {
	cfg, err := Config{}.Server()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestEnabledWithoutCertificates(t *testing.T) {
	_, err := Config{Enabled: true}.Server()
	assert.Error(t, err)

	_, err = Config{Enabled: true, Dir: t.TempDir()}.Server()
	assert.Error(t, err, "dir without auto_generate and without files")
}

func TestAutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	c := Config{Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.2", DNSNames: []string{"deploy.example.com"}}

	cfg, err := c.Server()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	for _, f := range []string{tlsCrt, tlsKey, tlsCaCrt} {
		assert.FileExists(t, filepath.Join(dir, f))
	}
	st, err := os.Stat(filepath.Join(dir, tlsKey))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy.example.com"}, leaf.DNSNames)

	// an existing pair is reused
	before, err := os.ReadFile(filepath.Join(dir, tlsCrt))
	require.NoError(t, err)
	_, err = c.Server()
	require.NoError(t, err)
	after, err := os.ReadFile(filepath.Join(dir, tlsCrt))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "a.crt")
	key := filepath.Join(dir, "a.key")
	require.NoError(t, GenerateSelfSignedCert(CertConfig{
		CommonName: "x", Organization: "o", CertPath: cert, KeyPath: key,
		NotAfter: mustFuture(),
	}))
	cfg, err := Config{Enabled: true, CertFile: cert, KeyFile: key}.Server()
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
}

func TestParseTLSVersion(t *testing.T) {
	v, err := parseTLSVersion("TLS1.2")
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), v)
	_, err = parseTLSVersion("1.0")
	assert.Error(t, err)
}

func mustFuture() time.Time { return time.Now().Add(24 * time.Hour) }
