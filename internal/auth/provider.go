package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/vvka-141/redismcp/pkg/redismcp"
)

// CredentialProvider abstracts credential acquisition for Redis
// authentication. This interface enables testability (scripted providers)
// and keeps the Refresher independent of the concrete auth flow.
type CredentialProvider interface {
	// Acquire obtains a fresh credential. For token-based flows the value
	// is a bearer token presented as the Redis password; for the static
	// flow it is the configured password and never expires.
	Acquire(ctx context.Context) (*redismcp.Credential, error)

	// String returns a human-readable description for logging.
	// Should NOT include secrets. Example: "ServicePrincipal(tenant=xxx, client=yyy)"
	String() string
}

// NewProvider builds the CredentialProvider for the selected auth flow.
// The profile supplies the static username/password pair for the none flow.
func NewProvider(selection *redismcp.AuthFlowSelection, profile *redismcp.ConnectionProfile) (CredentialProvider, error) {
	switch selection.Flow {
	case redismcp.AuthFlowNone:
		return NewStaticProvider(profile.Username, profile.Password), nil
	case redismcp.AuthFlowServicePrincipal:
		return NewServicePrincipalProvider(selection)
	case redismcp.AuthFlowManagedIdentity:
		return NewManagedIdentityProvider(selection)
	case redismcp.AuthFlowDefaultCredential:
		return NewDefaultChainProvider(selection)
	default:
		return nil, fmt.Errorf("auth flow %v: %w", selection.Flow, redismcp.ErrUnsupportedAuthFlow)
	}
}

// scopesFor derives the OAuth scopes of a token request. Explicit scopes win,
// then a configured resource identifier, then the Redis default scope.
func scopesFor(selection *redismcp.AuthFlowSelection) []string {
	if len(selection.Scopes) > 0 {
		return selection.Scopes
	}
	if selection.Resource != "" {
		return []string{strings.TrimSuffix(selection.Resource, "/") + "/.default"}
	}
	return []string{redismcp.DefaultScope}
}
