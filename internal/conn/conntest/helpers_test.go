//go:build conntest

package conntest

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/vvka-141/redismcp/internal/conn"
	"github.com/vvka-141/redismcp/internal/testinfra"
)

var (
	stdContainer      *testinfra.RedisContainer
	passwordContainer *testinfra.RedisContainer
	tlsContainer      *testinfra.RedisContainer
	certPaths         *testinfra.CertPaths
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	bundle, err := testinfra.GenerateCertBundle([]string{"localhost", "127.0.0.1"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate certs: %v\n", err)
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "redismcp-conntest-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create temp dir: %v\n", err)
		os.Exit(1)
	}

	paths, err := bundle.WriteToDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "write certs: %v\n", err)
		os.Exit(1)
	}
	certPaths = paths

	std, err := testinfra.StartRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start redis: %v\n", err)
		os.Exit(1)
	}
	stdContainer = std

	pwd, err := testinfra.StartPasswordRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start password redis: %v\n", err)
		stdContainer.Terminate(ctx) //nolint:errcheck
		os.Exit(1)
	}
	passwordContainer = pwd

	tlsCtr, err := testinfra.StartTLSRedis(ctx, certPaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start TLS redis: %v\n", err)
		stdContainer.Terminate(ctx)      //nolint:errcheck
		passwordContainer.Terminate(ctx) //nolint:errcheck
		os.Exit(1)
	}
	tlsContainer = tlsCtr

	code := m.Run()

	stdContainer.Terminate(ctx)      //nolint:errcheck
	passwordContainer.Terminate(ctx) //nolint:errcheck
	tlsContainer.Terminate(ctx)      //nolint:errcheck
	os.RemoveAll(dir)
	os.Exit(code)
}

func connectWith(t *testing.T, flags *conn.GranularConnFlags, env *conn.EnvVars) redis.UniversalClient {
	t.Helper()
	ctx := context.Background()

	profile, err := conn.Resolve(flags, env)
	if err != nil {
		t.Fatalf("resolve profile: %v", err)
	}

	client, err := conn.NewFactory(profile, nil, nil).Build(ctx)
	if err != nil {
		t.Fatalf("build client: %v", err)
	}

	t.Cleanup(func() { client.Close() })
	return client
}

func pingSucceeds(t *testing.T, client redis.UniversalClient) {
	t.Helper()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func testinfraPassword() string {
	return testinfra.RedisPassword
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// foreignCABundle writes the CA certificate of a freshly generated,
// unrelated bundle and returns its path.
func foreignCABundle() (string, error) {
	bundle, err := testinfra.GenerateCertBundle([]string{"localhost"})
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "redismcp-foreign-ca-*")
	if err != nil {
		return "", err
	}

	paths, err := bundle.WriteToDir(dir)
	if err != nil {
		return "", err
	}
	return paths.CACert, nil
}
