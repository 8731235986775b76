package strategy

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidcastane/delega/internal/config"
	"github.com/davidcastane/delega/internal/policy"
	"github.com/davidcastane/delega/internal/provider"
)

type fakeClient struct {
	name    string
	enabled bool
}

func (f *fakeClient) Descriptor() provider.Descriptor {
	return provider.Descriptor{Name: f.name, Kind: provider.KindOIDC, Enabled: f.enabled}
}

func (f *fakeClient) AuthorizeURL(context.Context, string, string) (string, error) {
	return "https://idp.example.org/authorize", nil
}

func (f *fakeClient) Validate(context.Context, url.Values, string) (*provider.Principal, error) {
	return &provider.Principal{Subject: "sub", Provider: f.name}, nil
}

func registryWith(t *testing.T, names ...string) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry()
	for _, n := range names {
		require.NoError(t, reg.Register(&fakeClient{name: n, enabled: true}))
	}
	return reg
}

func enforcerFor(services ...config.ServicePolicy) *policy.Enforcer {
	return policy.NewEnforcer(policy.NewStaticLookup(services))
}

func TestDefault_SingleCandidateAutoRedirects(t *testing.T) {
	// Two registered, policy filters down to one: degrade to AutoRedirect.
	d := &Default{
		Registry: registryWith(t, "github", "google"),
		Enforcer: enforcerFor(config.ServicePolicy{
			Service: "svc", DelegationEnabled: true, AllowedProviders: []string{"github"},
		}),
	}

	got, err := d.Select(context.Background(), ServiceContext{ServiceID: "svc"}, nil)
	require.NoError(t, err)
	require.Equal(t, KindAutoRedirect, got.Kind)
	require.Equal(t, "github", got.Provider)
}

func TestDefault_MultipleCandidatesPresentChoicesInOrder(t *testing.T) {
	d := &Default{
		Registry: registryWith(t, "idp-a", "idp-b"),
		Enforcer: enforcerFor(config.ServicePolicy{Service: "svc", DelegationEnabled: true}),
	}

	got, err := d.Select(context.Background(), ServiceContext{ServiceID: "svc"}, nil)
	require.NoError(t, err)
	require.Equal(t, KindPresentChoices, got.Kind)
	require.Equal(t, []string{"idp-a", "idp-b"}, got.Providers)
}

func TestDefault_NoCandidateDenies(t *testing.T) {
	d := &Default{
		Registry: registryWith(t, "github"),
		Enforcer: enforcerFor(config.ServicePolicy{Service: "svc", DelegationEnabled: false}),
	}

	got, err := d.Select(context.Background(), ServiceContext{ServiceID: "svc"}, nil)
	require.NoError(t, err)
	require.Equal(t, KindDeny, got.Kind)
}

func TestDefault_RequestedProvidersRestrictCandidates(t *testing.T) {
	d := &Default{
		Registry: registryWith(t, "github", "google", "cas-corp"),
		Enforcer: enforcerFor(config.ServicePolicy{Service: "svc", DelegationEnabled: true}),
	}

	got, err := d.Select(context.Background(), ServiceContext{
		ServiceID:          "svc",
		RequestedProviders: []string{"google"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, KindAutoRedirect, got.Kind)
	require.Equal(t, "google", got.Provider)
}

func TestDefault_DisabledProvidersAreNotCandidates(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(&fakeClient{name: "github", enabled: true}))
	require.NoError(t, reg.Register(&fakeClient{name: "legacy", enabled: false}))

	d := &Default{
		Registry: reg,
		Enforcer: enforcerFor(config.ServicePolicy{Service: "svc", DelegationEnabled: true}),
	}

	got, err := d.Select(context.Background(), ServiceContext{ServiceID: "svc"}, nil)
	require.NoError(t, err)
	require.Equal(t, KindAutoRedirect, got.Kind)
	require.Equal(t, "github", got.Provider)
}

type abstainStrategy struct{}

func (abstainStrategy) Select(context.Context, ServiceContext, url.Values) (Decision, error) {
	return Decision{}, nil
}

type fixedStrategy struct{ d Decision }

func (f fixedStrategy) Select(context.Context, ServiceContext, url.Values) (Decision, error) {
	return f.d, nil
}

func TestChain_FirstDecisionWins(t *testing.T) {
	c := NewChain(
		abstainStrategy{},
		fixedStrategy{d: AutoRedirect("github")},
		fixedStrategy{d: Deny("should not be reached")},
	)

	got, err := c.Select(context.Background(), ServiceContext{ServiceID: "svc"}, nil)
	require.NoError(t, err)
	require.Equal(t, KindAutoRedirect, got.Kind)
	require.Equal(t, "github", got.Provider)
}

func TestChain_AllAbstainDenies(t *testing.T) {
	c := NewChain(abstainStrategy{}, abstainStrategy{})

	got, err := c.Select(context.Background(), ServiceContext{ServiceID: "svc"}, nil)
	require.NoError(t, err)
	require.Equal(t, KindDeny, got.Kind)
}

func TestSwappable_ReloadSwapsImplementation(t *testing.T) {
	current := Strategy(fixedStrategy{d: AutoRedirect("github")})
	s := NewSwappable(func() Strategy { return current })

	got, err := s.Select(context.Background(), ServiceContext{ServiceID: "svc"}, nil)
	require.NoError(t, err)
	require.Equal(t, "github", got.Provider)

	current = &Disabled{}
	s.Reload()

	got, err = s.Select(context.Background(), ServiceContext{ServiceID: "svc"}, nil)
	require.NoError(t, err)
	require.Equal(t, KindDeny, got.Kind)
}
