//go:build conntest

package conntest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/redismcp/internal/conn"
	"github.com/vvka-141/redismcp/pkg/redismcp"
)

func TestConnect_URI(t *testing.T) {
	client := connectWith(t, &conn.GranularConnFlags{URL: stdContainer.URI()}, nil)
	pingSucceeds(t, client)
}

func TestConnect_GranularHostPort(t *testing.T) {
	client := connectWith(t, &conn.GranularConnFlags{
		Host: stdContainer.Host,
		Port: stdContainer.Port,
	}, nil)
	pingSucceeds(t, client)
}

func TestConnect_EnvironmentOnly(t *testing.T) {
	client := connectWith(t, nil, &conn.EnvVars{REDIS_URL: stdContainer.URI()})
	pingSucceeds(t, client)
}

func TestConnect_URIWinsOverGranularEnv(t *testing.T) {
	// The granular env points at a dead port; only the URI's address works.
	client := connectWith(t, &conn.GranularConnFlags{URL: stdContainer.URI()}, &conn.EnvVars{
		REDIS_HOST: stdContainer.Host,
		REDIS_PORT: "1",
	})
	pingSucceeds(t, client)
}

func TestConnect_DBSelection(t *testing.T) {
	clientA := connectWith(t, &conn.GranularConnFlags{
		Host: stdContainer.Host, Port: stdContainer.Port, DB: 3, DBSet: true,
	}, nil)
	clientB := connectWith(t, &conn.GranularConnFlags{
		Host: stdContainer.Host, Port: stdContainer.Port, DB: 4, DBSet: true,
	}, nil)

	ctx := context.Background()
	require.NoError(t, clientA.Set(ctx, "conntest:key", "db3", 0).Err())

	err := clientB.Get(ctx, "conntest:key").Err()
	assert.Error(t, err, "key written to db 3 must not appear in db 4")
}

func TestConnect_Password(t *testing.T) {
	client := connectWith(t, &conn.GranularConnFlags{
		Host:     passwordContainer.Host,
		Port:     passwordContainer.Port,
		Password: testinfraPassword(),
	}, nil)
	pingSucceeds(t, client)
}

func TestConnect_PasswordFromEnv(t *testing.T) {
	client := connectWith(t, nil, &conn.EnvVars{
		REDIS_HOST: passwordContainer.Host,
		REDIS_PORT: itoa(passwordContainer.Port),
		REDIS_PWD:  testinfraPassword(),
	})
	pingSucceeds(t, client)
}

func TestConnect_WrongPasswordFails(t *testing.T) {
	profile, err := conn.Resolve(&conn.GranularConnFlags{
		Host:     passwordContainer.Host,
		Port:     passwordContainer.Port,
		Password: "wrong",
	}, nil)
	require.NoError(t, err)

	_, err = conn.NewFactory(profile, nil, nil).Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, redismcp.ErrConnectionFailed)
	assert.Contains(t, err.Error(), "authentication rejected")
}

func TestConnect_DeadPortFails(t *testing.T) {
	profile, err := conn.Resolve(&conn.GranularConnFlags{Host: "127.0.0.1", Port: 1}, nil)
	require.NoError(t, err)

	_, err = conn.NewFactory(profile, nil, nil).Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, redismcp.ErrConnectionFailed)
}
