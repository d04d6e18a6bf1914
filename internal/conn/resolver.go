package conn

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vvka-141/redismcp/pkg/redismcp"
)

// GranularConnFlags represents connection parameters from CLI flags.
// String fields use the empty string as the "not provided" sentinel; boolean
// and db flags carry an explicit Set marker because false and 0 are
// meaningful values.
type GranularConnFlags struct {
	URL      string
	Host     string
	Port     int
	DB       int
	DBSet    bool
	Username string
	Password string

	SSL         bool
	SSLSet      bool
	SSLCertReqs string
	SSLCAPath   string
	SSLCACerts  string
	SSLKeyfile  string
	SSLCertfile string

	ClusterMode    bool
	ClusterModeSet bool
}

// IsEmpty returns true if no connection-related flags were provided.
func (g *GranularConnFlags) IsEmpty() bool {
	return g == nil || (g.URL == "" && g.Host == "" && g.Port == 0 && !g.DBSet &&
		g.Username == "" && g.Password == "" && !g.SSLSet && g.SSLCertReqs == "" &&
		g.SSLCAPath == "" && g.SSLCACerts == "" && g.SSLKeyfile == "" &&
		g.SSLCertfile == "" && !g.ClusterModeSet)
}

// EnvVars represents the environment surface of the server: the REDIS_*
// connection family and the ENTRAID_* authentication family.
type EnvVars struct {
	REDIS_HOST          string // Redis server host
	REDIS_PORT          string // Redis server port
	REDIS_DB            string // database index
	REDIS_USERNAME      string // ACL username
	REDIS_PWD           string // password (static auth)
	REDIS_SSL           string // "true"/"1"/"t" enables TLS
	REDIS_SSL_CA_PATH   string // directory of CA certificates
	REDIS_SSL_CA_CERTS  string // CA bundle file
	REDIS_SSL_KEYFILE   string // client key for mutual TLS
	REDIS_SSL_CERTFILE  string // client certificate for mutual TLS
	REDIS_SSL_CERT_REQS string // certificate policy: required/optional/none
	REDIS_CLUSTER_MODE  string // "true"/"1"/"t" enables cluster topology
	REDIS_URL           string // full connection URI (wins over granular vars)

	// Entra ID authentication (flow selector and per-flow parameters).
	ENTRAID_AUTH_FLOW                        string
	ENTRAID_CLIENT_ID                        string
	ENTRAID_CLIENT_SECRET                    string
	ENTRAID_TENANT_ID                        string
	ENTRAID_IDENTITY_TYPE                    string
	ENTRAID_USER_ASSIGNED_IDENTITY_CLIENT_ID string
	ENTRAID_SCOPES                           string
	ENTRAID_RESOURCE                         string

	// Token refresh tuning.
	ENTRAID_TOKEN_EXPIRATION_REFRESH_RATIO     string
	ENTRAID_LOWER_REFRESH_BOUND_MILLIS         string
	ENTRAID_TOKEN_REQUEST_EXECUTION_TIMEOUT_MS string
	ENTRAID_RETRY_MAX_ATTEMPTS                 string
	ENTRAID_RETRY_DELAY_MS                     string
}

// LoadFromEnvironment reads the environment surface once.
func LoadFromEnvironment() *EnvVars {
	return &EnvVars{
		REDIS_HOST:          os.Getenv("REDIS_HOST"),
		REDIS_PORT:          os.Getenv("REDIS_PORT"),
		REDIS_DB:            os.Getenv("REDIS_DB"),
		REDIS_USERNAME:      os.Getenv("REDIS_USERNAME"),
		REDIS_PWD:           os.Getenv("REDIS_PWD"),
		REDIS_SSL:           os.Getenv("REDIS_SSL"),
		REDIS_SSL_CA_PATH:   os.Getenv("REDIS_SSL_CA_PATH"),
		REDIS_SSL_CA_CERTS:  os.Getenv("REDIS_SSL_CA_CERTS"),
		REDIS_SSL_KEYFILE:   os.Getenv("REDIS_SSL_KEYFILE"),
		REDIS_SSL_CERTFILE:  os.Getenv("REDIS_SSL_CERTFILE"),
		REDIS_SSL_CERT_REQS: os.Getenv("REDIS_SSL_CERT_REQS"),
		REDIS_CLUSTER_MODE:  os.Getenv("REDIS_CLUSTER_MODE"),
		REDIS_URL:           os.Getenv("REDIS_URL"),

		ENTRAID_AUTH_FLOW:                        os.Getenv("ENTRAID_AUTH_FLOW"),
		ENTRAID_CLIENT_ID:                        os.Getenv("ENTRAID_CLIENT_ID"),
		ENTRAID_CLIENT_SECRET:                    os.Getenv("ENTRAID_CLIENT_SECRET"),
		ENTRAID_TENANT_ID:                        os.Getenv("ENTRAID_TENANT_ID"),
		ENTRAID_IDENTITY_TYPE:                    os.Getenv("ENTRAID_IDENTITY_TYPE"),
		ENTRAID_USER_ASSIGNED_IDENTITY_CLIENT_ID: os.Getenv("ENTRAID_USER_ASSIGNED_IDENTITY_CLIENT_ID"),
		ENTRAID_SCOPES:                           os.Getenv("ENTRAID_SCOPES"),
		ENTRAID_RESOURCE:                         os.Getenv("ENTRAID_RESOURCE"),

		ENTRAID_TOKEN_EXPIRATION_REFRESH_RATIO:     os.Getenv("ENTRAID_TOKEN_EXPIRATION_REFRESH_RATIO"),
		ENTRAID_LOWER_REFRESH_BOUND_MILLIS:         os.Getenv("ENTRAID_LOWER_REFRESH_BOUND_MILLIS"),
		ENTRAID_TOKEN_REQUEST_EXECUTION_TIMEOUT_MS: os.Getenv("ENTRAID_TOKEN_REQUEST_EXECUTION_TIMEOUT_MS"),
		ENTRAID_RETRY_MAX_ATTEMPTS:                 os.Getenv("ENTRAID_RETRY_MAX_ATTEMPTS"),
		ENTRAID_RETRY_DELAY_MS:                     os.Getenv("ENTRAID_RETRY_DELAY_MS"),
	}
}

// envBool interprets an environment value as a boolean the way the server
// always has: "true", "1" and "t" (lowercase) are true, everything else false.
func envBool(value string) bool {
	switch value {
	case "true", "1", "t":
		return true
	}
	return false
}

// Resolve merges flags and environment variables into an immutable
// ConnectionProfile. It is a pure function of its inputs: no I/O happens
// here beyond reading the given structs.
//
// Precedence per field: flag > environment variable > default. A connection
// URI (--url flag over REDIS_URL) is one atomic source: every field it
// defines (host, port, db, TLS flag, credentials when present) overrides the
// granular equivalents entirely. TLS query options are authoritative only
// for the sub-options they name; unnamed sub-options fall through to the
// granular flag/env/default chain.
func Resolve(flags *GranularConnFlags, env *EnvVars) (*redismcp.ConnectionProfile, error) {
	if flags == nil {
		flags = &GranularConnFlags{}
	}
	if env == nil {
		env = &EnvVars{}
	}

	uri := flags.URL
	if uri == "" {
		uri = env.REDIS_URL
	}

	var profile *redismcp.ConnectionProfile
	var err error
	if uri != "" {
		profile, err = resolveFromURI(uri, flags, env)
	} else {
		profile, err = resolveFromGranular(flags, env)
	}
	if err != nil {
		return nil, err
	}

	// Cluster mode is never carried by the URI.
	if flags.ClusterModeSet {
		profile.ClusterMode = flags.ClusterMode
	} else {
		profile.ClusterMode = envBool(env.REDIS_CLUSTER_MODE)
	}

	// SELECT is not supported across a cluster; the index is dropped there.
	if profile.ClusterMode {
		profile.DB = 0
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	return profile, nil
}

// resolveFromURI treats the URI as the authoritative source and fills the
// gaps it leaves from flags, environment and defaults.
func resolveFromURI(uri string, flags *GranularConnFlags, env *EnvVars) (*redismcp.ConnectionProfile, error) {
	parsed, err := ParseRedisURI(uri)
	if err != nil {
		return nil, err
	}

	profile := &redismcp.ConnectionProfile{
		Host: parsed.Host,
		Port: parsed.Port,
		DB:   parsed.DB,
		TLS: redismcp.TLSProfile{
			Enabled: parsed.TLS,
		},
	}

	if parsed.HasUsername {
		profile.Username = parsed.Username
	} else {
		profile.Username = firstNonEmpty(flags.Username, env.REDIS_USERNAME)
	}
	if parsed.HasPassword {
		profile.Password = parsed.Password
	} else {
		profile.Password = firstNonEmpty(flags.Password, env.REDIS_PWD)
	}

	// Query options win only for the sub-options they name.
	if parsed.CertReqs != "" {
		profile.TLS.CertReqs = parsed.CertReqs
	} else {
		profile.TLS.CertReqs = resolveCertReqs(flags, env)
	}
	profile.TLS.CAPath = firstNonEmpty(parsed.CAPath, flags.SSLCAPath, env.REDIS_SSL_CA_PATH)
	profile.TLS.CACerts = firstNonEmpty(parsed.CACerts, flags.SSLCACerts, env.REDIS_SSL_CA_CERTS)
	profile.TLS.Keyfile = firstNonEmpty(parsed.Keyfile, flags.SSLKeyfile, env.REDIS_SSL_KEYFILE)
	profile.TLS.Certfile = firstNonEmpty(parsed.Certfile, flags.SSLCertfile, env.REDIS_SSL_CERTFILE)

	return profile, nil
}

// resolveFromGranular builds the profile from flags and environment with
// per-field precedence: flag > env > default.
func resolveFromGranular(flags *GranularConnFlags, env *EnvVars) (*redismcp.ConnectionProfile, error) {
	profile := &redismcp.ConnectionProfile{}

	profile.Host = firstNonEmpty(flags.Host, env.REDIS_HOST, redismcp.DefaultHost)

	switch {
	case flags.Port != 0:
		profile.Port = flags.Port
	case env.REDIS_PORT != "":
		port, err := strconv.Atoi(env.REDIS_PORT)
		if err != nil {
			return nil, fmt.Errorf("invalid $REDIS_PORT value %q: must be an integer: %w",
				env.REDIS_PORT, redismcp.ErrInvalidConfig)
		}
		profile.Port = port
	default:
		profile.Port = redismcp.DefaultPort
	}

	switch {
	case flags.DBSet:
		profile.DB = flags.DB
	case env.REDIS_DB != "":
		db, err := strconv.Atoi(env.REDIS_DB)
		if err != nil {
			return nil, fmt.Errorf("invalid $REDIS_DB value %q: must be an integer: %w",
				env.REDIS_DB, redismcp.ErrInvalidConfig)
		}
		profile.DB = db
	default:
		profile.DB = redismcp.DefaultDB
	}

	profile.Username = firstNonEmpty(flags.Username, env.REDIS_USERNAME)
	profile.Password = firstNonEmpty(flags.Password, env.REDIS_PWD)

	if flags.SSLSet {
		profile.TLS.Enabled = flags.SSL
	} else {
		profile.TLS.Enabled = envBool(env.REDIS_SSL)
	}
	profile.TLS.CertReqs = resolveCertReqs(flags, env)
	profile.TLS.CAPath = firstNonEmpty(flags.SSLCAPath, env.REDIS_SSL_CA_PATH)
	profile.TLS.CACerts = firstNonEmpty(flags.SSLCACerts, env.REDIS_SSL_CA_CERTS)
	profile.TLS.Keyfile = firstNonEmpty(flags.SSLKeyfile, env.REDIS_SSL_KEYFILE)
	profile.TLS.Certfile = firstNonEmpty(flags.SSLCertfile, env.REDIS_SSL_CERTFILE)

	return profile, nil
}

func resolveCertReqs(flags *GranularConnFlags, env *EnvVars) redismcp.CertPolicy {
	return redismcp.CertPolicy(firstNonEmpty(
		flags.SSLCertReqs,
		env.REDIS_SSL_CERT_REQS,
		string(redismcp.DefaultCertReqs),
	))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ResolveAuthFlow builds the AuthFlowSelection from the ENTRAID_* environment
// family. There are no CLI flags for credentials; the environment is the only
// source, matching the Azure SDK conventions.
func ResolveAuthFlow(env *EnvVars) (*redismcp.AuthFlowSelection, error) {
	if env == nil {
		env = &EnvVars{}
	}

	flow, err := redismcp.ParseAuthFlow(env.ENTRAID_AUTH_FLOW)
	if err != nil {
		return nil, err
	}

	selection := &redismcp.AuthFlowSelection{
		Flow:                 flow,
		TenantID:             env.ENTRAID_TENANT_ID,
		ClientID:             env.ENTRAID_CLIENT_ID,
		ClientSecret:         env.ENTRAID_CLIENT_SECRET,
		IdentityType:         redismcp.IdentitySystemAssigned,
		UserAssignedClientID: env.ENTRAID_USER_ASSIGNED_IDENTITY_CLIENT_ID,
		Resource:             env.ENTRAID_RESOURCE,

		ExpirationRefreshRatio: redismcp.DefaultExpirationRefreshRatio,
		LowerRefreshBound:      redismcp.DefaultLowerRefreshBound,
		RequestTimeout:         redismcp.DefaultTokenRequestTimeout,
		RetryMaxAttempts:       redismcp.DefaultRetryMaxAttempts,
		RetryDelay:             redismcp.DefaultRetryInitialDelay,
	}

	if env.ENTRAID_IDENTITY_TYPE != "" {
		selection.IdentityType = redismcp.IdentityType(env.ENTRAID_IDENTITY_TYPE)
	}

	if env.ENTRAID_SCOPES != "" {
		for _, scope := range strings.Split(env.ENTRAID_SCOPES, ",") {
			if scope = strings.TrimSpace(scope); scope != "" {
				selection.Scopes = append(selection.Scopes, scope)
			}
		}
	}

	if v := env.ENTRAID_TOKEN_EXPIRATION_REFRESH_RATIO; v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid $ENTRAID_TOKEN_EXPIRATION_REFRESH_RATIO %q: %w", v, redismcp.ErrInvalidConfig)
		}
		selection.ExpirationRefreshRatio = ratio
	}
	if d, err := envMillis(env.ENTRAID_LOWER_REFRESH_BOUND_MILLIS, "ENTRAID_LOWER_REFRESH_BOUND_MILLIS"); err != nil {
		return nil, err
	} else if d > 0 {
		selection.LowerRefreshBound = d
	}
	if d, err := envMillis(env.ENTRAID_TOKEN_REQUEST_EXECUTION_TIMEOUT_MS, "ENTRAID_TOKEN_REQUEST_EXECUTION_TIMEOUT_MS"); err != nil {
		return nil, err
	} else if d > 0 {
		selection.RequestTimeout = d
	}
	if d, err := envMillis(env.ENTRAID_RETRY_DELAY_MS, "ENTRAID_RETRY_DELAY_MS"); err != nil {
		return nil, err
	} else if d > 0 {
		selection.RetryDelay = d
	}
	if v := env.ENTRAID_RETRY_MAX_ATTEMPTS; v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil || attempts < 0 {
			return nil, fmt.Errorf("invalid $ENTRAID_RETRY_MAX_ATTEMPTS %q: %w", v, redismcp.ErrInvalidConfig)
		}
		selection.RetryMaxAttempts = attempts
	}

	if err := selection.Validate(); err != nil {
		return nil, err
	}

	return selection, nil
}

func envMillis(value, name string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	ms, err := strconv.Atoi(value)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("invalid $%s %q: must be a non-negative integer: %w",
			name, value, redismcp.ErrInvalidConfig)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
