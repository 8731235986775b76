package policy

import (
	"context"
	"testing"

	"github.com/davidcastane/delega/internal/config"
	"github.com/stretchr/testify/require"
)

func staticLookup() *StaticLookup {
	return NewStaticLookup([]config.ServicePolicy{
		{Service: "https://app.example.org", DelegationEnabled: true, AllowedProviders: []string{"github"}},
		{Service: "https://open.example.org", DelegationEnabled: true},
		{Service: "https://off.example.org", DelegationEnabled: false},
	})
}

func TestEnforcer_ServiceAuthorization(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(staticLookup())

	ok, err := e.IsServiceAuthorized(ctx, "https://app.example.org")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.IsServiceAuthorized(ctx, "https://off.example.org")
	require.NoError(t, err)
	require.False(t, ok)

	// Unknown service: fail closed, no error.
	ok, err = e.IsServiceAuthorized(ctx, "https://unknown.example.org")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnforcer_ProviderAuthorization(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(staticLookup())

	ok, _ := e.IsProviderAuthorized(ctx, "https://app.example.org", "github")
	require.True(t, ok)

	ok, _ = e.IsProviderAuthorized(ctx, "https://app.example.org", "google")
	require.False(t, ok)

	// Empty allowed list means any provider.
	ok, _ = e.IsProviderAuthorized(ctx, "https://open.example.org", "anything")
	require.True(t, ok)

	// Disabled service denies even listed providers.
	ok, _ = e.IsProviderAuthorized(ctx, "https://off.example.org", "github")
	require.False(t, ok)
}

func TestEnforcer_FilterProviders(t *testing.T) {
	ctx := context.Background()
	e := NewEnforcer(staticLookup())

	got, err := e.FilterProviders(ctx, "https://app.example.org", []string{"github", "google"})
	require.NoError(t, err)
	require.Equal(t, []string{"github"}, got)

	got, err = e.FilterProviders(ctx, "https://open.example.org", []string{"idp-a", "idp-b"})
	require.NoError(t, err)
	require.Equal(t, []string{"idp-a", "idp-b"}, got)
}

// La política se consulta fresca en cada evaluación: una revocación entre
// SELECT y CALLBACK debe negar en el segundo check.
func TestEnforcer_FreshnessAfterRevocation(t *testing.T) {
	ctx := context.Background()
	lookup := staticLookup()
	e := NewEnforcer(lookup)

	ok, _ := e.IsProviderAuthorized(ctx, "https://app.example.org", "github")
	require.True(t, ok, "SELECT-time check should pass")

	// Revoke between the two enforcement points.
	lookup.Replace([]config.ServicePolicy{
		{Service: "https://app.example.org", DelegationEnabled: false},
	})

	ok, _ = e.IsProviderAuthorized(ctx, "https://app.example.org", "github")
	require.False(t, ok, "CALLBACK-time check must see the revocation")
}
