package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/redismcp/internal/auth"
	"github.com/vvka-141/redismcp/internal/conn"
	"github.com/vvka-141/redismcp/internal/logging"
	"github.com/vvka-141/redismcp/internal/mcpserver"
)

// registerConnFlags declares the connection surface of the server. Credential
// material for token flows comes from the environment only; there are no
// flags for client secrets.
func registerConnFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.String("url", "", "Redis connection URI (redis:// or rediss://), overrides host/port/db flags")
	flags.String("host", "", "Redis server host")
	flags.Int("port", 0, "Redis server port")
	flags.Int("db", 0, "Database index (ignored in cluster mode)")
	flags.String("username", "", "ACL username")
	flags.String("password", "", "Password for static authentication")
	flags.Bool("ssl", false, "Connect over TLS")
	flags.String("ssl-cert-reqs", "", "Server certificate policy: required, optional or none")
	flags.String("ssl-ca-path", "", "Directory of CA certificates")
	flags.String("ssl-ca-certs", "", "CA bundle file")
	flags.String("ssl-keyfile", "", "Client key for mutual TLS")
	flags.String("ssl-certfile", "", "Client certificate for mutual TLS")
	flags.Bool("cluster-mode", false, "Connect to a Redis cluster")
}

// collectConnFlags reads the parsed flag values. Changed markers distinguish
// an explicit zero value from an absent flag.
func collectConnFlags(cmd *cobra.Command) *conn.GranularConnFlags {
	flags := cmd.Flags()

	str := func(name string) string {
		v, _ := flags.GetString(name)
		return v
	}
	num := func(name string) int {
		v, _ := flags.GetInt(name)
		return v
	}
	boolean := func(name string) bool {
		v, _ := flags.GetBool(name)
		return v
	}

	return &conn.GranularConnFlags{
		URL:      str("url"),
		Host:     str("host"),
		Port:     num("port"),
		DB:       num("db"),
		DBSet:    flags.Changed("db"),
		Username: str("username"),
		Password: str("password"),

		SSL:         boolean("ssl"),
		SSLSet:      flags.Changed("ssl"),
		SSLCertReqs: str("ssl-cert-reqs"),
		SSLCAPath:   str("ssl-ca-path"),
		SSLCACerts:  str("ssl-ca-certs"),
		SSLKeyfile:  str("ssl-keyfile"),
		SSLCertfile: str("ssl-certfile"),

		ClusterMode:    boolean("cluster-mode"),
		ClusterModeSet: flags.Changed("cluster-mode"),
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.NewConsoleLogger(getVerboseFlag(cmd))

	// A .env file is optional; real environment variables are read either way.
	if err := godotenv.Load(); err == nil {
		logger.Verbose("loaded environment from .env")
	}

	env := conn.LoadFromEnvironment()

	profile, err := conn.Resolve(collectConnFlags(cmd), env)
	if err != nil {
		return err
	}

	selection, err := conn.ResolveAuthFlow(env)
	if err != nil {
		return err
	}

	logger.Verbose("resolved connection %s (db=%d, tls=%v, cluster=%v, auth_flow=%s)",
		profile.Addr(), profile.DB, profile.TLS.Enabled, profile.ClusterMode, selection.Flow)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := auth.NewProvider(selection, profile)
	if err != nil {
		return err
	}

	refresher := auth.NewRefresher(provider, selection, logger)
	if err := refresher.Start(ctx); err != nil {
		return err
	}
	defer refresher.Stop()

	client, err := conn.NewFactory(profile, refresher, logger).Build(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{
		Profile: profile,
		Flow:    selection,
		Client:  client,
		Creds:   refresher,
		Logger:  logger,
		Version: version,
	})

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Verbose("shutting down")
	return nil
}
