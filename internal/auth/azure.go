package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vvka-141/redismcp/pkg/redismcp"
)

// ServicePrincipalProvider acquires tokens using Entra ID client credentials.
// This is the primary authentication method for unattended deployments.
type ServicePrincipalProvider struct {
	tenantID   string
	clientID   string
	credential *azidentity.ClientSecretCredential
	scopes     []string
	timeout    time.Duration
}

// NewServicePrincipalProvider creates a token provider for the
// service_principal flow. Tenant, client id and client secret are required.
func NewServicePrincipalProvider(selection *redismcp.AuthFlowSelection) (*ServicePrincipalProvider, error) {
	if selection.TenantID == "" || selection.ClientID == "" || selection.ClientSecret == "" {
		return nil, fmt.Errorf("service principal flow requires tenant id, client id and client secret: %w",
			redismcp.ErrInvalidConfig)
	}

	cred, err := azidentity.NewClientSecretCredential(selection.TenantID, selection.ClientID, selection.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create service principal credential: %w", err)
	}

	return &ServicePrincipalProvider{
		tenantID:   selection.TenantID,
		clientID:   selection.ClientID,
		credential: cred,
		scopes:     scopesFor(selection),
		timeout:    selection.RequestTimeout,
	}, nil
}

func (p *ServicePrincipalProvider) Acquire(ctx context.Context) (*redismcp.Credential, error) {
	return acquireToken(ctx, p.credential, p.scopes, p.timeout)
}

func (p *ServicePrincipalProvider) String() string {
	return fmt.Sprintf("ServicePrincipal(tenant=%s, client=%s)", p.tenantID, p.clientID)
}

// ManagedIdentityProvider acquires tokens from the Azure instance metadata
// endpoint, using either the system-assigned identity or a user-assigned one
// selected by client id.
type ManagedIdentityProvider struct {
	identityType redismcp.IdentityType
	clientID     string
	credential   *azidentity.ManagedIdentityCredential
	scopes       []string
	timeout      time.Duration
}

func NewManagedIdentityProvider(selection *redismcp.AuthFlowSelection) (*ManagedIdentityProvider, error) {
	var opts *azidentity.ManagedIdentityCredentialOptions
	if selection.IdentityType == redismcp.IdentityUserAssigned {
		if selection.UserAssignedClientID == "" {
			return nil, fmt.Errorf("user assigned identity requires a client id: %w", redismcp.ErrInvalidConfig)
		}
		opts = &azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(selection.UserAssignedClientID),
		}
	}

	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create managed identity credential: %w", err)
	}

	return &ManagedIdentityProvider{
		identityType: selection.IdentityType,
		clientID:     selection.UserAssignedClientID,
		credential:   cred,
		scopes:       scopesFor(selection),
		timeout:      selection.RequestTimeout,
	}, nil
}

func (p *ManagedIdentityProvider) Acquire(ctx context.Context) (*redismcp.Credential, error) {
	return acquireToken(ctx, p.credential, p.scopes, p.timeout)
}

func (p *ManagedIdentityProvider) String() string {
	if p.identityType == redismcp.IdentityUserAssigned {
		return fmt.Sprintf("ManagedIdentity(user_assigned, client=%s)", p.clientID)
	}
	return "ManagedIdentity(system_assigned)"
}

// DefaultChainProvider uses Azure's DefaultAzureCredential chain, which tries
// environment variables, workload identity, managed identity and the local
// Azure CLI in order.
type DefaultChainProvider struct {
	credential azcore.TokenCredential
	scopes     []string
	timeout    time.Duration
}

func NewDefaultChainProvider(selection *redismcp.AuthFlowSelection) (*DefaultChainProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create default credential chain: %w", err)
	}

	return &DefaultChainProvider{
		credential: cred,
		scopes:     scopesFor(selection),
		timeout:    selection.RequestTimeout,
	}, nil
}

func (p *DefaultChainProvider) Acquire(ctx context.Context) (*redismcp.Credential, error) {
	return acquireToken(ctx, p.credential, p.scopes, p.timeout)
}

func (p *DefaultChainProvider) String() string {
	return "DefaultCredentialChain"
}

// acquireToken requests a token under the configured timeout and converts it
// into a credential snapshot.
func acquireToken(ctx context.Context, cred azcore.TokenCredential, scopes []string, timeout time.Duration) (*redismcp.Credential, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
	if err != nil {
		return nil, fmt.Errorf("token acquisition failed: %v: %w", err, redismcp.ErrAuthFailed)
	}

	return &redismcp.Credential{
		Username:   usernameFromToken(token.Token),
		Value:      token.Token,
		ExpiresAt:  token.ExpiresOn,
		AcquiredAt: time.Now(),
	}, nil
}

// usernameFromToken extracts the object id claim Redis expects as the ACL
// username for Entra ID tokens. The signature is not verified here; the
// server validates the token itself.
func usernameFromToken(raw string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	if oid, ok := claims["oid"].(string); ok {
		return oid
	}
	return ""
}
