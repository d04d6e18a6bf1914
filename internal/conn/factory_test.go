package conn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/redismcp/pkg/redismcp"
)

type staticSource struct {
	cred *redismcp.Credential
	err  error
}

func (s *staticSource) Current() (*redismcp.Credential, error) {
	return s.cred, s.err
}

func plainProfile() *redismcp.ConnectionProfile {
	return &redismcp.ConnectionProfile{Host: "localhost", Port: 6379}
}

func TestNewFactory_NilLogger(t *testing.T) {
	f := NewFactory(plainProfile(), nil, nil)
	require.NotNil(t, f)

	// The null logger must absorb calls without panicking.
	f.logger.Verbose("probe %d", 1)
}

func TestFactory_TLSConfigDisabled(t *testing.T) {
	f := NewFactory(plainProfile(), nil, nil)

	cfg, err := f.tlsConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg, "no TLS config when TLS is off")
}

func TestFactory_TLSConfigCertPolicies(t *testing.T) {
	tests := []struct {
		policy     redismcp.CertPolicy
		skipVerify bool
	}{
		{redismcp.CertPolicyRequired, false},
		{redismcp.CertPolicyOptional, true},
		{redismcp.CertPolicyNone, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			profile := plainProfile()
			profile.TLS = redismcp.TLSProfile{Enabled: true, CertReqs: tt.policy}

			cfg, err := NewFactory(profile, nil, nil).tlsConfig()
			require.NoError(t, err)
			require.NotNil(t, cfg)
			assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
			assert.Equal(t, tt.skipVerify, cfg.InsecureSkipVerify)
		})
	}
}

func TestFactory_TLSConfigKeypairRequiresBothHalves(t *testing.T) {
	profile := plainProfile()
	profile.TLS = redismcp.TLSProfile{Enabled: true, Certfile: "/tmp/only-cert.pem"}

	_, err := NewFactory(profile, nil, nil).tlsConfig()
	require.ErrorIs(t, err, redismcp.ErrInvalidConfig)
}

func TestFactory_TLSConfigMissingCABundle(t *testing.T) {
	profile := plainProfile()
	profile.TLS = redismcp.TLSProfile{
		Enabled: true,
		CACerts: filepath.Join(t.TempDir(), "absent.pem"),
	}

	_, err := NewFactory(profile, nil, nil).tlsConfig()
	require.ErrorIs(t, err, redismcp.ErrInvalidConfig)
}

func TestFactory_TLSConfigWithGeneratedMaterial(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedPair(t, dir)

	profile := plainProfile()
	profile.TLS = redismcp.TLSProfile{
		Enabled:  true,
		CertReqs: redismcp.CertPolicyRequired,
		CACerts:  certPath,
		Certfile: certPath,
		Keyfile:  keyPath,
	}

	cfg, err := NewFactory(profile, nil, nil).tlsConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.NotNil(t, cfg.RootCAs)
	assert.Len(t, cfg.Certificates, 1)
}

func TestFactory_TLSConfigCADirectory(t *testing.T) {
	dir := t.TempDir()
	writeSelfSignedPair(t, dir)

	profile := plainProfile()
	profile.TLS = redismcp.TLSProfile{Enabled: true, CAPath: dir}

	cfg, err := NewFactory(profile, nil, nil).tlsConfig()
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
}

func TestFactory_TLSConfigCADirectoryWithoutCerts(t *testing.T) {
	profile := plainProfile()
	profile.TLS = redismcp.TLSProfile{Enabled: true, CAPath: t.TempDir()}

	_, err := NewFactory(profile, nil, nil).tlsConfig()
	require.ErrorIs(t, err, redismcp.ErrInvalidConfig)
}

func TestFactory_ApplyCredentialsStatic(t *testing.T) {
	profile := plainProfile()
	profile.Username = "svc"
	profile.Password = "hunter2"
	f := NewFactory(profile, nil, nil)

	var user, pass string
	var provider func(ctx context.Context) (string, string, error)
	f.applyCredentials(&user, &pass, &provider)

	assert.Equal(t, "svc", user)
	assert.Equal(t, "hunter2", pass)
	assert.Nil(t, provider, "static auth must not install a provider")
}

func TestFactory_ApplyCredentialsLiveSource(t *testing.T) {
	profile := plainProfile()
	profile.Username = "fallback-user"
	source := &staticSource{cred: &redismcp.Credential{
		Username:   "oid-user",
		Value:      "token-1",
		ExpiresAt:  time.Now().Add(time.Hour),
		AcquiredAt: time.Now(),
	}}
	f := NewFactory(profile, source, nil)

	var user, pass string
	var provider func(ctx context.Context) (string, string, error)
	f.applyCredentials(&user, &pass, &provider)

	require.NotNil(t, provider)
	assert.Empty(t, user, "live auth must not pin a static pair")

	gotUser, gotPass, err := provider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "oid-user", gotUser)
	assert.Equal(t, "token-1", gotPass)

	// An empty credential username falls back to the profile's.
	source.cred = &redismcp.Credential{Value: "token-2"}
	gotUser, gotPass, err = provider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fallback-user", gotUser)
	assert.Equal(t, "token-2", gotPass)
}

func TestFactory_ApplyCredentialsSourceErrorPropagates(t *testing.T) {
	source := &staticSource{err: redismcp.ErrAuthFailed}
	f := NewFactory(plainProfile(), source, nil)

	var user, pass string
	var provider func(ctx context.Context) (string, string, error)
	f.applyCredentials(&user, &pass, &provider)

	require.NotNil(t, provider)
	_, _, err := provider(context.Background())
	require.ErrorIs(t, err, redismcp.ErrAuthFailed)
}

func TestFactory_WrapConnectionError(t *testing.T) {
	f := NewFactory(plainProfile(), nil, nil)

	tests := []struct {
		name     string
		raw      string
		guidance string
	}{
		{"refused", "dial tcp 127.0.0.1:6379: connect: connection refused", "is the Redis server running"},
		{"dns", "dial tcp: lookup nowhere.invalid: no such host", "check the hostname and DNS"},
		{"auth", "WRONGPASS invalid username-password pair", "check the credentials or auth flow"},
		{"timeout", "dial tcp 10.0.0.1:6379: i/o timeout", "timed out"},
		{"tls", "tls: failed to verify certificate", "check ssl_cert_reqs"},
		{"other", "EOF", "failed to connect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.wrapConnectionError(errors.New(tt.raw))
			require.ErrorIs(t, err, redismcp.ErrConnectionFailed)
			assert.Contains(t, err.Error(), tt.guidance)
			assert.Contains(t, err.Error(), tt.raw, "the raw cause must survive wrapping")
		})
	}
}

// writeSelfSignedPair generates a throwaway self-signed certificate and key
// in dir and returns their paths.
func writeSelfSignedPair(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "cert.pem")
	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPath = filepath.Join(dir, "key.pem")
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	require.NoError(t, keyOut.Close())

	return certPath, keyPath
}
