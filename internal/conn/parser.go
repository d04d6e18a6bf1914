package conn

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vvka-141/redismcp/pkg/redismcp"
)

// URIConfig holds the connection parameters defined by a Redis URI.
//
// A URI always defines host, port, db and the TLS-enabled flag (falling back
// to the scheme defaults), so those override any individually specified
// equivalents. Credentials and TLS sub-options are only authoritative when
// the URI actually names them; the Has*/non-empty fields record that.
type URIConfig struct {
	TLS  bool
	Host string
	Port int
	DB   int

	Username    string
	HasUsername bool
	Password    string
	HasPassword bool

	// TLS sub-options from recognized query keys. Empty means not named.
	CertReqs redismcp.CertPolicy
	CAPath   string
	CACerts  string
	Keyfile  string
	Certfile string
}

// ParseRedisURI parses a connection URI of the form
//
//	redis://[user[:password]@]host[:port][/db][?opt=val&...]
//
// The rediss scheme selects TLS. Recognized query keys are ssl_cert_reqs,
// ssl_ca_certs, ssl_ca_path, ssl_keyfile, ssl_certfile and db; unrecognized
// keys are ignored. Per the IANA provisional registration of the redis
// scheme, a db query key overrides the path database number.
//
// Malformed input fails with an error wrapping redismcp.ErrInvalidConfig.
func ParseRedisURI(uri string) (*URIConfig, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("connection URI is empty: %w", redismcp.ErrInvalidConfig)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URI: %v: %w", err, redismcp.ErrInvalidConfig)
	}

	config := &URIConfig{
		Host: redismcp.DefaultHost,
		Port: redismcp.DefaultPort,
		DB:   redismcp.DefaultDB,
	}

	switch u.Scheme {
	case "redis":
		config.TLS = false
	case "rediss":
		config.TLS = true
	default:
		return nil, fmt.Errorf("unsupported scheme %q (expected redis or rediss): %w",
			u.Scheme, redismcp.ErrInvalidConfig)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("Redis URI has no host: %w", redismcp.ErrInvalidConfig)
	}
	config.Host = u.Hostname()

	if u.Port() != "" {
		port, err := strconv.Atoi(u.Port())
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q in Redis URI: %w", u.Port(), redismcp.ErrInvalidConfig)
		}
		config.Port = port
	}

	if u.User != nil {
		config.Username = u.User.Username()
		config.HasUsername = true
		if pass, ok := u.User.Password(); ok {
			config.Password = pass
			config.HasPassword = true
		}
	}

	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil || db < 0 {
			return nil, fmt.Errorf("invalid database index %q in Redis URI: %w", path, redismcp.ErrInvalidConfig)
		}
		config.DB = db
	}

	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[0]

		switch strings.ToLower(key) {
		case "ssl_cert_reqs":
			policy := redismcp.CertPolicy(value)
			if !policy.IsValid() {
				return nil, fmt.Errorf("invalid ssl_cert_reqs %q in Redis URI: %w", value, redismcp.ErrInvalidConfig)
			}
			config.CertReqs = policy
		case "ssl_ca_certs":
			config.CACerts = value
		case "ssl_ca_path":
			config.CAPath = value
		case "ssl_keyfile":
			config.Keyfile = value
		case "ssl_certfile":
			config.Certfile = value
		case "db":
			db, err := strconv.Atoi(value)
			if err != nil || db < 0 {
				return nil, fmt.Errorf("invalid db query value %q in Redis URI: %w", value, redismcp.ErrInvalidConfig)
			}
			config.DB = db
		default:
			// Unrecognized query options are not errors.
		}
	}

	return config, nil
}
