package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseConnFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	registerConnFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestCollectConnFlags_Empty(t *testing.T) {
	flags := collectConnFlags(parseConnFlags(t))
	assert.True(t, flags.IsEmpty())
}

func TestCollectConnFlags_Values(t *testing.T) {
	cmd := parseConnFlags(t,
		"--url", "rediss://h:6380",
		"--host", "example",
		"--port", "7000",
		"--username", "app",
		"--password", "pw",
		"--ssl-cert-reqs", "none",
		"--ssl-ca-certs", "/ca.pem",
	)

	flags := collectConnFlags(cmd)
	assert.Equal(t, "rediss://h:6380", flags.URL)
	assert.Equal(t, "example", flags.Host)
	assert.Equal(t, 7000, flags.Port)
	assert.Equal(t, "app", flags.Username)
	assert.Equal(t, "pw", flags.Password)
	assert.Equal(t, "none", flags.SSLCertReqs)
	assert.Equal(t, "/ca.pem", flags.SSLCACerts)
	assert.False(t, flags.DBSet)
	assert.False(t, flags.SSLSet)
	assert.False(t, flags.ClusterModeSet)
}

func TestCollectConnFlags_ExplicitZeroValues(t *testing.T) {
	// --db 0 and --ssl=false are meaningful choices, not absent flags.
	cmd := parseConnFlags(t, "--db", "0", "--ssl=false", "--cluster-mode=false")

	flags := collectConnFlags(cmd)
	assert.True(t, flags.DBSet)
	assert.Equal(t, 0, flags.DB)
	assert.True(t, flags.SSLSet)
	assert.False(t, flags.SSL)
	assert.True(t, flags.ClusterModeSet)
	assert.False(t, flags.ClusterMode)
}

func TestCollectConnFlags_BooleanShortForms(t *testing.T) {
	cmd := parseConnFlags(t, "--ssl", "--cluster-mode")

	flags := collectConnFlags(cmd)
	assert.True(t, flags.SSL)
	assert.True(t, flags.SSLSet)
	assert.True(t, flags.ClusterMode)
	assert.True(t, flags.ClusterModeSet)
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	registerConnFlags(cmd)
	assert.Error(t, cmd.ParseFlags([]string{"--no-such-flag"}))
}

func TestRootCommand_HasVersionSubcommand(t *testing.T) {
	found := false
	for _, sub := range rootCmd.Commands() {
		if sub.Name() == "version" {
			found = true
		}
	}
	assert.True(t, found)
}
