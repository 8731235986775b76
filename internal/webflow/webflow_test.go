package webflow

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidcastane/delega/internal/cache"
)

func newManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	c, err := cache.New(cache.Config{Kind: "memory", Prefix: "test:", DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return NewManager(c, ttl)
}

func TestManager_StoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, time.Minute)

	token, err := m.Store(ctx, PendingContext{
		ServiceID:      "https://app.example.org",
		Provider:       "github",
		SessionID:      "sess-1",
		Nonce:          "n-1",
		OriginalParams: map[string]string{"service": "https://app.example.org"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	pc, err := m.RetrieveAndInvalidate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "github", pc.Provider)
	require.Equal(t, "https://app.example.org", pc.ServiceID)
	require.Equal(t, "sess-1", pc.SessionID)
	require.Equal(t, "n-1", pc.Nonce)
	require.Equal(t, token, pc.CorrelationToken)
}

func TestManager_RetrieveIsSingleUse(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, time.Minute)

	token, err := m.Store(ctx, PendingContext{ServiceID: "svc", Provider: "github"})
	require.NoError(t, err)

	_, err = m.RetrieveAndInvalidate(ctx, token)
	require.NoError(t, err)

	// Replay: the first retrieve invalidated the token.
	_, err = m.RetrieveAndInvalidate(ctx, token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManager_ConcurrentRetrieveSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, time.Minute)

	token, err := m.Store(ctx, PendingContext{ServiceID: "svc", Provider: "github"})
	require.NoError(t, err)

	const callers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := m.RetrieveAndInvalidate(ctx, token); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins.Load(), "exactly one caller must win the pending context")
}

func TestManager_ExpiredContextIsGone(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, 10*time.Millisecond)

	token, err := m.Store(ctx, PendingContext{ServiceID: "svc", Provider: "github"})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = m.RetrieveAndInvalidate(ctx, token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManager_UnknownTokenIsNotFound(t *testing.T) {
	m := newManager(t, time.Minute)
	_, err := m.RetrieveAndInvalidate(context.Background(), "no-such-token")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.RetrieveAndInvalidate(context.Background(), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTokenFromCallback(t *testing.T) {
	require.Equal(t, "tok-a", TokenFromCallback(url.Values{"state": {"tok-a"}}))
	require.Equal(t, "tok-b", TokenFromCallback(url.Values{"relay": {"tok-b"}}))
	// state wins when both are present
	require.Equal(t, "tok-a", TokenFromCallback(url.Values{"state": {"tok-a"}, "relay": {"tok-b"}}))
	require.Empty(t, TokenFromCallback(url.Values{}))
}

func TestResolveProvider(t *testing.T) {
	// Recorded provider is authoritative.
	got, err := ResolveProvider(&PendingContext{Provider: "github"}, url.Values{})
	require.NoError(t, err)
	require.Equal(t, "github", got)

	// Matching claim is fine.
	got, err = ResolveProvider(&PendingContext{Provider: "github"}, url.Values{"client_name": {"github"}})
	require.NoError(t, err)
	require.Equal(t, "github", got)

	// Conflicting claim is a mismatch, not a silent override.
	_, err = ResolveProvider(&PendingContext{Provider: "github"}, url.Values{"client_name": {"google"}})
	require.ErrorIs(t, err, ErrMismatch)

	// No recorded provider: the parameter decides.
	got, err = ResolveProvider(&PendingContext{}, url.Values{"client_name": {"cas-corp"}})
	require.NoError(t, err)
	require.Equal(t, "cas-corp", got)

	// Nothing to go on.
	_, err = ResolveProvider(&PendingContext{}, url.Values{})
	require.ErrorIs(t, err, ErrUnresolved)
}
