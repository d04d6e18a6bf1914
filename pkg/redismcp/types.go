package redismcp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CertPolicy controls how the server certificate is verified on TLS
// connections. It mirrors the ssl_cert_reqs option of the Redis URI scheme.
type CertPolicy string

const (
	CertPolicyRequired CertPolicy = "required"
	CertPolicyOptional CertPolicy = "optional"
	CertPolicyNone     CertPolicy = "none"
)

// IsValid returns true if the CertPolicy is one of the recognized values.
func (p CertPolicy) IsValid() bool {
	switch p {
	case CertPolicyRequired, CertPolicyOptional, CertPolicyNone:
		return true
	}
	return false
}

// TLSProfile holds the transport security settings of a connection profile.
type TLSProfile struct {
	// Enabled reports whether the connection uses TLS at all
	// (rediss:// scheme, --ssl flag or REDIS_SSL).
	Enabled bool

	// CertReqs is the server certificate verification policy.
	CertReqs CertPolicy

	// CAPath is a directory of CA certificates.
	CAPath string

	// CACerts is the path to a CA bundle file.
	CACerts string

	// Keyfile and Certfile are the client keypair for mutual TLS.
	Keyfile  string
	Certfile string
}

// ConnectionProfile is the fully resolved connection configuration.
// It is built once at startup by conn.Resolve and never mutated afterwards,
// so it needs no synchronization.
type ConnectionProfile struct {
	Host string
	Port int

	// DB is the database index selected after connecting.
	// Always 0 in cluster mode (the SELECT command is not supported there).
	DB int

	Username string
	Password string

	TLS TLSProfile

	// ClusterMode selects a topology-aware cluster client instead of a
	// single-node client.
	ClusterMode bool
}

// Addr returns the host:port pair of the profile.
func (p *ConnectionProfile) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Validate checks range constraints of the resolved profile.
// It returns a multi-error wrapping ErrInvalidConfig on failure.
func (p *ConnectionProfile) Validate() error {
	var errs []error

	if p.Host == "" {
		errs = append(errs, fmt.Errorf("host must not be empty: %w", ErrInvalidConfig))
	}
	if p.Port < 1 || p.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535: %w", p.Port, ErrInvalidConfig))
	}
	if p.DB < 0 {
		errs = append(errs, fmt.Errorf("db index %d must not be negative: %w", p.DB, ErrInvalidConfig))
	}
	if p.TLS.CertReqs != "" && !p.TLS.CertReqs.IsValid() {
		errs = append(errs, fmt.Errorf("ssl_cert_reqs %q must be one of required, optional, none: %w",
			p.TLS.CertReqs, ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// AuthFlow identifies the credential acquisition strategy.
// Flows are mutually exclusive and closed; exactly one is active per process.
type AuthFlow int

const (
	AuthFlowNone             AuthFlow = iota // static username/password
	AuthFlowServicePrincipal                 // Entra ID client id/secret/tenant
	AuthFlowManagedIdentity                  // instance metadata endpoint
	AuthFlowDefaultCredential                // ambient credential chain
)

// String returns the configuration-facing name of the flow.
func (f AuthFlow) String() string {
	switch f {
	case AuthFlowNone:
		return "none"
	case AuthFlowServicePrincipal:
		return "service_principal"
	case AuthFlowManagedIdentity:
		return "managed_identity"
	case AuthFlowDefaultCredential:
		return "default_credential"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}

// ParseAuthFlow maps a configuration string to an AuthFlow.
// The empty string selects AuthFlowNone.
func ParseAuthFlow(s string) (AuthFlow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AuthFlowNone, nil
	case "service_principal":
		return AuthFlowServicePrincipal, nil
	case "managed_identity":
		return AuthFlowManagedIdentity, nil
	case "default_credential":
		return AuthFlowDefaultCredential, nil
	default:
		return AuthFlowNone, fmt.Errorf("unsupported auth flow %q: %w", s, ErrUnsupportedAuthFlow)
	}
}

// IdentityType selects between system-assigned and user-assigned managed
// identities.
type IdentityType string

const (
	IdentitySystemAssigned IdentityType = "system_assigned"
	IdentityUserAssigned   IdentityType = "user_assigned"
)

// AuthFlowSelection carries the parameters of the selected auth flow.
// Fields belonging to other flows are ignored, never validated against.
type AuthFlowSelection struct {
	Flow AuthFlow

	// Service principal parameters.
	TenantID     string
	ClientID     string
	ClientSecret string

	// Managed identity parameters.
	IdentityType         IdentityType
	UserAssignedClientID string

	// Resource is the target resource identifier tokens are scoped to.
	Resource string

	// Scopes are the OAuth scopes requested by the default credential chain.
	Scopes []string

	// Token refresh tuning. Zero values select the package defaults.
	ExpirationRefreshRatio float64
	LowerRefreshBound      time.Duration
	RequestTimeout         time.Duration
	RetryMaxAttempts       int
	RetryDelay             time.Duration
}

// Validate checks that the fields required by the selected flow are present.
// It only inspects fields owned by the active flow.
func (s *AuthFlowSelection) Validate() error {
	var errs []error

	switch s.Flow {
	case AuthFlowNone:
		// Nothing to validate; static credentials live on the profile.

	case AuthFlowServicePrincipal:
		if s.ClientID == "" {
			errs = append(errs, fmt.Errorf("service_principal flow requires ENTRAID_CLIENT_ID: %w", ErrInvalidConfig))
		}
		if s.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("service_principal flow requires ENTRAID_CLIENT_SECRET: %w", ErrInvalidConfig))
		}
		if s.TenantID == "" {
			errs = append(errs, fmt.Errorf("service_principal flow requires ENTRAID_TENANT_ID: %w", ErrInvalidConfig))
		}

	case AuthFlowManagedIdentity:
		switch s.IdentityType {
		case IdentitySystemAssigned:
		case IdentityUserAssigned:
			if s.UserAssignedClientID == "" {
				errs = append(errs, fmt.Errorf(
					"user_assigned identity requires ENTRAID_USER_ASSIGNED_IDENTITY_CLIENT_ID: %w", ErrInvalidConfig))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid identity type %q: %w", s.IdentityType, ErrInvalidConfig))
		}

	case AuthFlowDefaultCredential:
		// Scopes default to the Redis scope when empty.

	default:
		errs = append(errs, fmt.Errorf("unsupported auth flow %v: %w", s.Flow, ErrUnsupportedAuthFlow))
	}

	if s.ExpirationRefreshRatio < 0 || s.ExpirationRefreshRatio > 1 {
		errs = append(errs, fmt.Errorf("token expiration refresh ratio %v out of range 0-1: %w",
			s.ExpirationRefreshRatio, ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// Credential is an immutable authentication snapshot. A refresh produces a
// new Credential; the value of a published one is never mutated in place.
type Credential struct {
	// Username accompanying the secret. May be empty (Redis "default" user).
	Username string

	// Value is the bearer token or static password presented to the server.
	Value string

	// ExpiresAt is the token expiry. The zero value means the credential is
	// static and never expires.
	ExpiresAt time.Time

	// AcquiredAt records when the credential was obtained.
	AcquiredAt time.Time
}

// Expires reports whether the credential has an expiry at all.
func (c *Credential) Expires() bool {
	return !c.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the credential is no longer valid at the given
// instant. Static credentials never expire.
func (c *Credential) ExpiredAt(now time.Time) bool {
	return c.Expires() && !now.Before(c.ExpiresAt)
}

// TTL returns the remaining lifetime at the given instant, or zero for
// static credentials.
func (c *Credential) TTL(now time.Time) time.Duration {
	if !c.Expires() {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}
