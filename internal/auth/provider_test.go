package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/redismcp/pkg/redismcp"
)

func TestNewProvider_NoneFlowUsesProfilePair(t *testing.T) {
	selection := &redismcp.AuthFlowSelection{Flow: redismcp.AuthFlowNone}
	profile := &redismcp.ConnectionProfile{Username: "app", Password: "s3cret"}

	provider, err := NewProvider(selection, profile)
	require.NoError(t, err)

	static, ok := provider.(*StaticProvider)
	require.True(t, ok, "none flow must yield a StaticProvider")

	cred, err := static.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "app", cred.Username)
	assert.Equal(t, "s3cret", cred.Value)
	assert.False(t, cred.Expires())
}

func TestNewProvider_ServicePrincipal(t *testing.T) {
	selection := &redismcp.AuthFlowSelection{
		Flow:         redismcp.AuthFlowServicePrincipal,
		TenantID:     "11111111-2222-3333-4444-555555555555",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}

	provider, err := NewProvider(selection, &redismcp.ConnectionProfile{})
	require.NoError(t, err)

	desc := provider.String()
	assert.Contains(t, desc, "ServicePrincipal")
	assert.Contains(t, desc, "client-id")
	assert.NotContains(t, desc, "client-secret", "description must not leak the secret")
}

func TestNewProvider_ServicePrincipalMissingFields(t *testing.T) {
	selection := &redismcp.AuthFlowSelection{
		Flow:     redismcp.AuthFlowServicePrincipal,
		TenantID: "11111111-2222-3333-4444-555555555555",
		ClientID: "client-id",
	}

	_, err := NewProvider(selection, &redismcp.ConnectionProfile{})
	require.ErrorIs(t, err, redismcp.ErrInvalidConfig)
}

func TestNewProvider_ManagedIdentity(t *testing.T) {
	provider, err := NewProvider(&redismcp.AuthFlowSelection{
		Flow:         redismcp.AuthFlowManagedIdentity,
		IdentityType: redismcp.IdentitySystemAssigned,
	}, &redismcp.ConnectionProfile{})
	require.NoError(t, err)
	assert.Equal(t, "ManagedIdentity(system_assigned)", provider.String())

	provider, err = NewProvider(&redismcp.AuthFlowSelection{
		Flow:                 redismcp.AuthFlowManagedIdentity,
		IdentityType:         redismcp.IdentityUserAssigned,
		UserAssignedClientID: "mi-client",
	}, &redismcp.ConnectionProfile{})
	require.NoError(t, err)
	assert.Contains(t, provider.String(), "mi-client")
}

func TestNewProvider_UserAssignedRequiresClientID(t *testing.T) {
	_, err := NewProvider(&redismcp.AuthFlowSelection{
		Flow:         redismcp.AuthFlowManagedIdentity,
		IdentityType: redismcp.IdentityUserAssigned,
	}, &redismcp.ConnectionProfile{})
	require.ErrorIs(t, err, redismcp.ErrInvalidConfig)
}

func TestNewProvider_UnsupportedFlow(t *testing.T) {
	_, err := NewProvider(&redismcp.AuthFlowSelection{Flow: redismcp.AuthFlow(99)}, &redismcp.ConnectionProfile{})
	require.ErrorIs(t, err, redismcp.ErrUnsupportedAuthFlow)
}

func TestScopesFor(t *testing.T) {
	tests := []struct {
		name      string
		selection *redismcp.AuthFlowSelection
		want      []string
	}{
		{
			"explicit scopes win",
			&redismcp.AuthFlowSelection{Scopes: []string{"a", "b"}, Resource: "https://r"},
			[]string{"a", "b"},
		},
		{
			"resource derives the default scope",
			&redismcp.AuthFlowSelection{Resource: "https://my-cache.example"},
			[]string{"https://my-cache.example/.default"},
		},
		{
			"trailing slash on resource is normalized",
			&redismcp.AuthFlowSelection{Resource: "https://my-cache.example/"},
			[]string{"https://my-cache.example/.default"},
		},
		{
			"fallback to the Redis scope",
			&redismcp.AuthFlowSelection{},
			[]string{redismcp.DefaultScope},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scopesFor(tt.selection))
		})
	}
}

func TestStaticProvider_String(t *testing.T) {
	assert.Equal(t, "Static(user=app)", NewStaticProvider("app", "pw").String())
	assert.Equal(t, "Static(user=default)", NewStaticProvider("", "pw").String())
	assert.NotContains(t, NewStaticProvider("app", "pw").String(), "pw")
}

func TestUsernameFromToken(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"oid": "00000000-aaaa-bbbb-cccc-dddddddddddd",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	assert.Equal(t, "00000000-aaaa-bbbb-cccc-dddddddddddd", usernameFromToken(signed))
	assert.Empty(t, usernameFromToken("not-a-jwt"))

	noOID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.Empty(t, usernameFromToken(noOID))
}
