package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidcastane/delega/internal/cache"
)

func newStore(t *testing.T) *UsageStore {
	t.Helper()
	c, err := cache.New(cache.Config{Kind: "memory", DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return NewUsageStore(c, time.Minute)
}

func TestUsageStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.RecordProvider(ctx, "sess-1", "github"))
	require.NoError(t, s.RecordProvider(ctx, "sess-1", "cas-corp"))
	// Re-recording is idempotent.
	require.NoError(t, s.RecordProvider(ctx, "sess-1", "github"))

	got, err := s.Providers(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, []string{"github", "cas-corp"}, got)
}

func TestUsageStore_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.RecordProvider(ctx, "sess-1", "github"))

	got, err := s.Providers(ctx, "sess-2")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestUsageStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.RecordProvider(ctx, "sess-1", "github"))
	require.NoError(t, s.Clear(ctx, "sess-1"))

	got, err := s.Providers(ctx, "sess-1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestUsageStore_EmptyInputsAreNoops(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.RecordProvider(ctx, "", "github"))
	require.NoError(t, s.RecordProvider(ctx, "sess-1", ""))

	got, err := s.Providers(ctx, "")
	require.NoError(t, err)
	require.Empty(t, got)
}
