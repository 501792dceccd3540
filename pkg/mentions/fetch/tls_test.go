package fetch

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mentionkit/config"
)

// writeSelfSigned writes a self-signed certificate and key into dir and
// returns their paths.
func writeSelfSigned(t *testing.T, dir, name string) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "mentionkit-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, name+".crt")
	keyPath = filepath.Join(dir, name+".key")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func TestLoadClientTLSConfig_Disabled(t *testing.T) {
	cfg, err := LoadClientTLSConfig(&config.TLSConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadClientTLSConfig_CAOnly(t *testing.T) {
	dir := t.TempDir()
	ca, _ := writeSelfSigned(t, dir, "ca")

	cfg, err := LoadClientTLSConfig(&config.TLSConfig{Enabled: true, CACert: ca})
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestLoadClientTLSConfig_MutualTLS(t *testing.T) {
	dir := t.TempDir()
	writeSelfSigned(t, dir, "ca")
	writeSelfSigned(t, dir, "client")

	cfg, err := LoadClientTLSConfig(&config.TLSConfig{Enabled: true, CertDir: dir})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.NotNil(t, cfg.RootCAs)
}

func TestLoadClientTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.crt")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))

	_, err := LoadClientTLSConfig(&config.TLSConfig{Enabled: true, CACert: bad})
	assert.ErrorContains(t, err, "invalid PEM")

	_, err = LoadClientTLSConfig(&config.TLSConfig{Enabled: true, CACert: filepath.Join(dir, "missing.crt")})
	assert.ErrorContains(t, err, "read CA cert")

	_, err = LoadClientTLSConfig(&config.TLSConfig{Enabled: true, ClientCert: bad, ClientKey: bad})
	assert.ErrorContains(t, err, "load client cert")
}

func TestLoadClientTLSConfig_SkipVerifyIgnoresCA(t *testing.T) {
	cfg, err := LoadClientTLSConfig(&config.TLSConfig{
		Enabled:    true,
		SkipVerify: true,
		CACert:     filepath.Join(t.TempDir(), "missing.crt"),
	})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.RootCAs)
}

func TestCheckCertsExist(t *testing.T) {
	dir := t.TempDir()
	ca, _ := writeSelfSigned(t, dir, "ca")

	assert.NoError(t, CheckCertsExist(&config.TLSConfig{CACert: ca}))

	err := CheckCertsExist(&config.TLSConfig{CACert: ca, ClientCert: filepath.Join(dir, "nope.crt")})
	assert.ErrorContains(t, err, "Client certificate not found")
}
