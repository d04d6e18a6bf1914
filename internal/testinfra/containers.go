package testinfra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	RedisImage    = "redis:7-alpine"
	RedisPassword = "testinfra-secret"

	containerTLSDir = "/tls"
)

type RedisContainer struct {
	*tcredis.RedisContainer
	Host string
	Port int
}

// StartRedis runs an unauthenticated single-node Redis container.
func StartRedis(ctx context.Context) (*RedisContainer, error) {
	ctr, err := tcredis.Run(ctx, RedisImage,
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start redis: %w", err)
	}
	return wrapContainer(ctx, ctr)
}

// StartPasswordRedis runs a Redis container that requires RedisPassword
// for every connection.
func StartPasswordRedis(ctx context.Context) (*RedisContainer, error) {
	confPath, err := writeRequirepassConfig()
	if err != nil {
		return nil, err
	}

	ctr, err := tcredis.Run(ctx, RedisImage,
		tcredis.WithConfigFile(confPath),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start password-protected redis: %w", err)
	}
	return wrapContainer(ctx, ctr)
}

// StartTLSRedis runs a Redis container that only accepts TLS connections,
// presenting the server certificate from certPaths. Client certificates are
// requested but not required, so both plain-TLS and mTLS clients can connect.
func StartTLSRedis(ctx context.Context, certPaths *CertPaths) (*RedisContainer, error) {
	confPath, err := writeTLSConfig()
	if err != nil {
		return nil, err
	}

	ctr, err := tcredis.Run(ctx, RedisImage,
		tcredis.WithConfigFile(confPath),
		testcontainers.CustomizeRequest(testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Files: []testcontainers.ContainerFile{
					{HostFilePath: certPaths.CACert, ContainerFilePath: containerTLSDir + "/ca.crt", FileMode: 0o644},
					{HostFilePath: certPaths.ServerCert, ContainerFilePath: containerTLSDir + "/server.crt", FileMode: 0o644},
					{HostFilePath: certPaths.ServerKey, ContainerFilePath: containerTLSDir + "/server.key", FileMode: 0o644},
				},
			},
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start TLS redis: %w", err)
	}
	return wrapContainer(ctx, ctr)
}

func wrapContainer(ctx context.Context, ctr *tcredis.RedisContainer) (*RedisContainer, error) {
	host, err := ctr.Host(ctx)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}

	mapped, err := ctr.MappedPort(ctx, "6379/tcp")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("parse mapped port %q: %w", mapped.Port(), err)
	}

	return &RedisContainer{RedisContainer: ctr, Host: host, Port: port}, nil
}

// URI returns the redis:// connection string of the container.
func (c *RedisContainer) URI() string {
	return fmt.Sprintf("redis://%s:%d", c.Host, c.Port)
}

func writeRequirepassConfig() (string, error) {
	conf := fmt.Sprintf("requirepass %s\n", RedisPassword)
	return writeConfigFile(conf)
}

func writeTLSConfig() (string, error) {
	conf := fmt.Sprintf(`port 0
tls-port 6379
tls-cert-file %s/server.crt
tls-key-file %s/server.key
tls-ca-cert-file %s/ca.crt
tls-auth-clients optional
`, containerTLSDir, containerTLSDir, containerTLSDir)
	return writeConfigFile(conf)
}

func writeConfigFile(conf string) (string, error) {
	dir, err := os.MkdirTemp("", "redismcp-testinfra-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	path := filepath.Join(dir, "redis.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		return "", fmt.Errorf("write redis.conf: %w", err)
	}
	return path, nil
}
