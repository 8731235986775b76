// Package assertion emite la afirmación de identidad que recibe el servicio
// al final de un flujo delegado: un JWT EdDSA firmado por este servidor, que
// viaja indirectamente mediante un result code de un solo uso.
package assertion

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/davidcastane/delega/internal/provider"
)

// Assertion is the signed statement handed to the relying service.
type Assertion struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Provider  string    `json:"provider"`
	ServiceID string    `json:"service_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer firma assertions con una clave ed25519. La clave viene de config
// (seed base64) o se genera efímera al arrancar; en ese caso las assertions
// no sobreviven un restart, aceptable porque su TTL es de minutos.
type Issuer struct {
	iss  string
	ttl  time.Duration
	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewIssuer builds an Issuer. seedB64 is an optional base64 (std or raw-url)
// 32-byte ed25519 seed; empty generates an ephemeral key.
func NewIssuer(iss, seedB64 string, ttl time.Duration) (*Issuer, error) {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	var priv ed25519.PrivateKey
	if seedB64 == "" {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("assertion: generate key: %w", err)
		}
		priv = generated
	} else {
		seed, err := decodeB64(seedB64)
		if err != nil {
			return nil, fmt.Errorf("assertion: decode signing key: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("assertion: signing key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		priv = ed25519.NewKeyFromSeed(seed)
	}

	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &Issuer{
		iss:  iss,
		ttl:  ttl,
		kid:  base64.RawURLEncoding.EncodeToString(sum[:8]),
		priv: priv,
		pub:  pub,
	}, nil
}

// Sign issues an assertion for the authenticated principal, scoped to the
// requesting service.
func (i *Issuer) Sign(p *provider.Principal, serviceID string) (*Assertion, error) {
	if p == nil || p.Subject == "" {
		return nil, errors.New("assertion: principal without subject")
	}

	now := time.Now().UTC()
	exp := now.Add(i.ttl)
	claims := jwtv5.MapClaims{
		"iss": i.iss,
		"sub": p.Subject,
		"aud": serviceID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
		"idp": p.Provider,
	}
	if p.Email != "" {
		claims["email"] = p.Email
	}
	if p.Name != "" {
		claims["name"] = p.Name
	}
	if len(p.Attributes) > 0 {
		claims["attrs"] = p.Attributes
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.kid
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(i.priv)
	if err != nil {
		return nil, fmt.Errorf("assertion: sign: %w", err)
	}

	return &Assertion{
		Token:     signed,
		Subject:   p.Subject,
		Provider:  p.Provider,
		ServiceID: serviceID,
		ExpiresAt: exp,
	}, nil
}

// Keyfunc validates tokens signed by this issuer.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("assertion: unexpected signing method %v", t.Header["alg"])
		}
		if kid, _ := t.Header["kid"].(string); kid != "" && kid != i.kid {
			return nil, fmt.Errorf("assertion: unknown kid %q", kid)
		}
		return i.pub, nil
	}
}

func decodeB64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
