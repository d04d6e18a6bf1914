package conn

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vvka-141/redismcp/internal/logging"
	"github.com/vvka-141/redismcp/internal/retry"
	"github.com/vvka-141/redismcp/pkg/redismcp"
)

// CredentialSource provides the current live credential.
// auth.Refresher implements it; readers must never block on a refresh.
type CredentialSource interface {
	Current() (*redismcp.Credential, error)
}

// Factory builds the authenticated Redis client from a resolved profile and
// a live credential source.
//
// Credentials are supplied per connection through the driver's credentials
// provider hook, so a refreshed token reaches the server on every new or
// re-established connection without rebuilding the client.
type Factory struct {
	profile       *redismcp.ConnectionProfile
	creds         CredentialSource
	logger        redismcp.Logger
	retryExecutor *retry.Executor
}

// NewFactory creates a Factory. creds may be nil, in which case the profile's
// static username/password pair authenticates the connection directly.
func NewFactory(profile *redismcp.ConnectionProfile, creds CredentialSource, logger redismcp.Logger) *Factory {
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	strategy := retry.NewExponentialBackoff(redismcp.DefaultRetryMaxAttempts,
		retry.WithInitialDelay(redismcp.DefaultRetryInitialDelay),
		retry.WithMaxDelay(redismcp.DefaultRetryMaxDelay),
	)
	executor := retry.NewExecutor(retry.NewRedisErrorClassifier(), strategy)

	return &Factory{
		profile:       profile,
		creds:         creds,
		logger:        logger,
		retryExecutor: executor,
	}
}

// Build opens the client and verifies the connection with PING, retrying
// transient failures a bounded number of times. On exhaustion it returns an
// error wrapping redismcp.ErrConnectionFailed.
func (f *Factory) Build(ctx context.Context) (redis.UniversalClient, error) {
	tlsConfig, err := f.tlsConfig()
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient

	executor := f.retryExecutor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		f.logger.Verbose("connection attempt %d failed (%v), retrying in %v", attempt+1, err, delay)
	})

	err = executor.Execute(ctx, func(ctx context.Context) error {
		client = f.newClient(tlsConfig)

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return f.wrapConnectionError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Verbose("connected to %s (cluster_mode=%v, tls=%v)",
		f.profile.Addr(), f.profile.ClusterMode, f.profile.TLS.Enabled)

	return client, nil
}

func (f *Factory) newClient(tlsConfig *tls.Config) redis.UniversalClient {
	if f.profile.ClusterMode {
		opts := &redis.ClusterOptions{
			Addrs:     []string{f.profile.Addr()},
			TLSConfig: tlsConfig,
		}
		f.applyCredentials(&opts.Username, &opts.Password, &opts.CredentialsProviderContext)
		return redis.NewClusterClient(opts)
	}

	opts := &redis.Options{
		Addr:      f.profile.Addr(),
		DB:        f.profile.DB,
		TLSConfig: tlsConfig,
	}
	f.applyCredentials(&opts.Username, &opts.Password, &opts.CredentialsProviderContext)
	return redis.NewClient(opts)
}

// applyCredentials wires either the live credential source or the profile's
// static pair into the client options.
func (f *Factory) applyCredentials(username, password *string, provider *func(ctx context.Context) (string, string, error)) {
	if f.creds == nil {
		*username = f.profile.Username
		*password = f.profile.Password
		return
	}

	*provider = func(ctx context.Context) (string, string, error) {
		cred, err := f.creds.Current()
		if err != nil {
			return "", "", err
		}
		user := cred.Username
		if user == "" {
			user = f.profile.Username
		}
		return user, cred.Value, nil
	}
}

// tlsConfig builds the TLS settings from the profile. Missing or unreadable
// certificate material is a configuration error, not a connection error.
func (f *Factory) tlsConfig() (*tls.Config, error) {
	p := f.profile
	if !p.TLS.Enabled {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	// Go's TLS client has no half-verification mode; optional degrades to
	// skipping verification, same as none.
	if p.TLS.CertReqs == redismcp.CertPolicyNone || p.TLS.CertReqs == redismcp.CertPolicyOptional {
		cfg.InsecureSkipVerify = true
	}

	if p.TLS.CACerts != "" || p.TLS.CAPath != "" {
		pool, err := loadCertPool(p.TLS.CACerts, p.TLS.CAPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	switch {
	case p.TLS.Certfile != "" && p.TLS.Keyfile != "":
		pair, err := tls.LoadX509KeyPair(p.TLS.Certfile, p.TLS.Keyfile)
		if err != nil {
			return nil, fmt.Errorf("loading client keypair (%s, %s): %v: %w",
				p.TLS.Certfile, p.TLS.Keyfile, err, redismcp.ErrInvalidConfig)
		}
		cfg.Certificates = []tls.Certificate{pair}
	case p.TLS.Certfile != "" || p.TLS.Keyfile != "":
		return nil, fmt.Errorf("ssl_certfile and ssl_keyfile must be provided together: %w",
			redismcp.ErrInvalidConfig)
	}

	return cfg, nil
}

// loadCertPool assembles the CA pool from a bundle file and/or a directory
// of PEM certificates, on top of the system roots.
func loadCertPool(bundle, dir string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}

	if bundle != "" {
		pem, err := os.ReadFile(bundle)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle %s: %v: %w", bundle, err, redismcp.ErrInvalidConfig)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no usable certificates: %w", bundle, redismcp.ErrInvalidConfig)
		}
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading CA directory %s: %v: %w", dir, err, redismcp.ErrInvalidConfig)
		}
		appended := false
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			pem, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			if pool.AppendCertsFromPEM(pem) {
				appended = true
			}
		}
		if !appended {
			return nil, fmt.Errorf("CA directory %s contains no usable certificates: %w", dir, redismcp.ErrInvalidConfig)
		}
	}

	return pool, nil
}

// wrapConnectionError wraps raw driver errors with actionable guidance and
// the ErrConnectionFailed sentinel.
func (f *Factory) wrapConnectionError(err error) error {
	msg := strings.ToLower(err.Error())
	addr := f.profile.Addr()

	switch {
	case strings.Contains(msg, "connection refused"):
		return fmt.Errorf("connection refused to %s (is the Redis server running and the port correct?): %v: %w",
			addr, err, redismcp.ErrConnectionFailed)

	case strings.Contains(msg, "no such host"):
		return fmt.Errorf("cannot resolve host %q (check the hostname and DNS): %v: %w",
			f.profile.Host, err, redismcp.ErrConnectionFailed)

	case strings.Contains(msg, "wrongpass"), strings.Contains(msg, "noauth"),
		strings.Contains(msg, "invalid password"):
		return fmt.Errorf("authentication rejected by %s (check the credentials or auth flow): %v: %w",
			addr, err, redismcp.ErrConnectionFailed)

	case strings.Contains(msg, "i/o timeout"), strings.Contains(msg, "timed out"):
		return fmt.Errorf("connection to %s timed out (server unreachable or firewalled): %v: %w",
			addr, err, redismcp.ErrConnectionFailed)

	case strings.Contains(msg, "tls") || strings.Contains(msg, "certificate"):
		return fmt.Errorf("TLS handshake with %s failed (check ssl_cert_reqs and certificate paths): %v: %w",
			addr, err, redismcp.ErrConnectionFailed)

	default:
		return fmt.Errorf("failed to connect to %s: %v: %w", addr, err, redismcp.ErrConnectionFailed)
	}
}
