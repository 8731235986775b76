package logout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidcastane/delega/internal/cache"
	"github.com/davidcastane/delega/internal/provider"
	"github.com/davidcastane/delega/internal/session"
)

// notifyingIdP is a fake provider with an optional logout endpoint.
type notifyingIdP struct {
	name      string
	logoutURL string
}

func (f *notifyingIdP) Descriptor() provider.Descriptor {
	return provider.Descriptor{Name: f.name, Kind: provider.KindOIDC, Enabled: true, LogoutEndpoint: f.logoutURL}
}

func (f *notifyingIdP) AuthorizeURL(context.Context, string, string) (string, error) {
	return "https://idp.example.org/authorize", nil
}

func (f *notifyingIdP) Validate(context.Context, url.Values, string) (*provider.Principal, error) {
	return &provider.Principal{Subject: "sub", Provider: f.name}, nil
}

func (f *notifyingIdP) LogoutURL() (string, bool) {
	return f.logoutURL, f.logoutURL != ""
}

func newUsage(t *testing.T) *session.UsageStore {
	t.Helper()
	c, err := cache.New(cache.Config{Kind: "memory", DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return session.NewUsageStore(c, time.Hour)
}

func TestLogout_NotifiesUsedProviders(t *testing.T) {
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(&notifyingIdP{name: "github", logoutURL: srv.URL + "/logout"}))
	require.NoError(t, reg.Register(&notifyingIdP{name: "unused", logoutURL: srv.URL + "/logout"}))

	usage := newUsage(t)
	require.NoError(t, usage.RecordProvider(ctx, "sess-1", "github"))

	c := NewCoordinator(reg, usage, time.Second)
	res, err := c.Logout(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Notified["github"])
	require.NotContains(t, res.Notified, "unused")
	require.Equal(t, int32(1), hits.Load())

	// Usage is cleared: a second logout has nothing to notify.
	res, err = c.Logout(ctx, "sess-1")
	require.NoError(t, err)
	require.Empty(t, res.Notified)
	require.Equal(t, int32(1), hits.Load())
}

func TestLogout_UnreachableProviderIsNotFatal(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(&notifyingIdP{name: "github", logoutURL: srv.URL + "/logout"}))
	require.NoError(t, reg.Register(&notifyingIdP{name: "down", logoutURL: "http://127.0.0.1:1/logout"}))

	usage := newUsage(t)
	require.NoError(t, usage.RecordProvider(ctx, "sess-1", "github"))
	require.NoError(t, usage.RecordProvider(ctx, "sess-1", "down"))

	c := NewCoordinator(reg, usage, 500*time.Millisecond)
	res, err := c.Logout(ctx, "sess-1")
	require.NoError(t, err, "local logout must succeed despite the unreachable provider")
	require.Equal(t, OutcomeOK, res.Notified["github"])
	require.Equal(t, OutcomeFailed, res.Notified["down"])
}

func TestLogout_ProviderWithoutLogoutEndpointIsSkipped(t *testing.T) {
	ctx := context.Background()

	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(&notifyingIdP{name: "github"}))

	usage := newUsage(t)
	require.NoError(t, usage.RecordProvider(ctx, "sess-1", "github"))

	c := NewCoordinator(reg, usage, time.Second)
	res, err := c.Logout(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Notified["github"])
}

func TestLogout_SessionWithNoUsage(t *testing.T) {
	reg := provider.NewRegistry()
	c := NewCoordinator(reg, newUsage(t), time.Second)

	res, err := c.Logout(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Empty(t, res.Notified)
}
