package assertion

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/davidcastane/delega/internal/cache"
	"github.com/davidcastane/delega/internal/provider"
)

func testPrincipal() *provider.Principal {
	return &provider.Principal{
		Subject:  "user-42",
		Provider: "github",
		Email:    "dev@example.org",
		Name:     "Dev",
	}
}

func TestIssuer_SignAndVerify(t *testing.T) {
	iss, err := NewIssuer("https://delega.example.org", "", 2*time.Minute)
	require.NoError(t, err)

	a, err := iss.Sign(testPrincipal(), "https://app.example.org")
	require.NoError(t, err)
	require.NotEmpty(t, a.Token)
	require.Equal(t, "user-42", a.Subject)
	require.Equal(t, "github", a.Provider)

	tk, err := jwtv5.Parse(a.Token, iss.Keyfunc(), jwtv5.WithValidMethods([]string{"EdDSA"}))
	require.NoError(t, err)
	require.True(t, tk.Valid)

	claims := tk.Claims.(jwtv5.MapClaims)
	require.Equal(t, "https://delega.example.org", claims["iss"])
	require.Equal(t, "user-42", claims["sub"])
	require.Equal(t, "https://app.example.org", claims["aud"])
	require.Equal(t, "github", claims["idp"])
	require.Equal(t, "dev@example.org", claims["email"])
}

func TestIssuer_ConfiguredSeedIsDeterministic(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	seedB64 := base64.StdEncoding.EncodeToString(seed)

	a, err := NewIssuer("iss", seedB64, time.Minute)
	require.NoError(t, err)
	b, err := NewIssuer("iss", seedB64, time.Minute)
	require.NoError(t, err)

	// Same seed, same key: tokens from one issuer verify against the other.
	signed, err := a.Sign(testPrincipal(), "svc")
	require.NoError(t, err)
	_, err = jwtv5.Parse(signed.Token, b.Keyfunc(), jwtv5.WithValidMethods([]string{"EdDSA"}))
	require.NoError(t, err)
}

func TestIssuer_RejectsBadSeed(t *testing.T) {
	_, err := NewIssuer("iss", "not-base64!!!", time.Minute)
	require.Error(t, err)

	_, err = NewIssuer("iss", base64.StdEncoding.EncodeToString([]byte("short")), time.Minute)
	require.Error(t, err)
}

func TestIssuer_RejectsEmptyPrincipal(t *testing.T) {
	iss, err := NewIssuer("iss", "", time.Minute)
	require.NoError(t, err)

	_, err = iss.Sign(nil, "svc")
	require.Error(t, err)
	_, err = iss.Sign(&provider.Principal{}, "svc")
	require.Error(t, err)
}

func newCodes(t *testing.T, ttl time.Duration) *ResultCodes {
	t.Helper()
	c, err := cache.New(cache.Config{Kind: "memory", DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return NewResultCodes(c, ttl)
}

func TestResultCodes_IssueAndRedeem(t *testing.T) {
	ctx := context.Background()
	rc := newCodes(t, time.Minute)

	code, err := rc.Issue(ctx, &Assertion{Token: "jwt", Subject: "user-42", Provider: "github", ServiceID: "svc"})
	require.NoError(t, err)
	require.NotEmpty(t, code)

	a, err := rc.Redeem(ctx, code)
	require.NoError(t, err)
	require.Equal(t, "user-42", a.Subject)
	require.Equal(t, "jwt", a.Token)
}

func TestResultCodes_RedeemIsSingleUse(t *testing.T) {
	ctx := context.Background()
	rc := newCodes(t, time.Minute)

	code, err := rc.Issue(ctx, &Assertion{Subject: "user-42"})
	require.NoError(t, err)

	_, err = rc.Redeem(ctx, code)
	require.NoError(t, err)

	_, err = rc.Redeem(ctx, code)
	require.ErrorIs(t, err, ErrCodeNotFound)
}

func TestResultCodes_UnknownCode(t *testing.T) {
	rc := newCodes(t, time.Minute)
	_, err := rc.Redeem(context.Background(), "nope")
	require.ErrorIs(t, err, ErrCodeNotFound)
	_, err = rc.Redeem(context.Background(), "")
	require.ErrorIs(t, err, ErrCodeNotFound)
}
