// Package oidc implements the OIDC provider client on top of go-oidc and
// x/oauth2: endpoint discovery, code exchange and ID-token verification.
package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/davidcastane/delega/internal/provider"
)

// Options configure a Client.
type Options struct {
	Name        string
	DisplayName string
	Enabled     bool

	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// LogoutEndpoint overrides the discovered end_session_endpoint.
	LogoutEndpoint string

	// HTTPTimeout bounds every provider network call. Default 10s.
	HTTPTimeout time.Duration
}

// Client is an OIDC provider client.
type Client struct {
	desc     provider.Descriptor
	conf     *oauth2.Config
	verifier *gooidc.IDTokenVerifier
	http     *http.Client
}

type discoveryExtra struct {
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// New discovers the issuer and builds the client. The discovery fetch happens
// once, at construction.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("oidc %s: issuer requerido", opts.Name)
	}
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("oidc %s: client_id/client_secret requeridos", opts.Name)
	}

	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := &http.Client{Timeout: timeout}

	dctx := gooidc.ClientContext(ctx, hc)
	op, err := gooidc.NewProvider(dctx, opts.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc %s: discovery: %w", opts.Name, err)
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	logout := opts.LogoutEndpoint
	if logout == "" {
		var extra discoveryExtra
		if err := op.Claims(&extra); err == nil {
			logout = extra.EndSessionEndpoint
		}
	}

	endpoint := op.Endpoint()
	return &Client{
		desc: provider.Descriptor{
			Name:             opts.Name,
			DisplayName:      opts.DisplayName,
			Kind:             provider.KindOIDC,
			RedirectEndpoint: endpoint.AuthURL,
			LogoutEndpoint:   logout,
			Enabled:          opts.Enabled,
		},
		conf: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		verifier: op.Verifier(&gooidc.Config{ClientID: opts.ClientID}),
		http:     hc,
	}, nil
}

func (c *Client) Descriptor() provider.Descriptor { return c.desc }

// AuthorizeURL builds the authorization URL carrying state and nonce.
func (c *Client) AuthorizeURL(_ context.Context, state, nonce string) (string, error) {
	return c.conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
	), nil
}

// Validate exchanges the callback code and verifies the ID token, including
// the nonce recorded before the redirect.
func (c *Client) Validate(ctx context.Context, params url.Values, nonce string) (*provider.Principal, error) {
	if e := params.Get("error"); e != "" {
		if isUserCaused(e) {
			return nil, fmt.Errorf("%w: %s", provider.ErrRejected, e)
		}
		return nil, fmt.Errorf("oidc %s: provider error: %s", c.desc.Name, e)
	}
	code := params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("oidc %s: callback sin code", c.desc.Name)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oidc %s: exchange: %w", c.desc.Name, err)
	}

	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, fmt.Errorf("oidc %s: respuesta sin id_token", c.desc.Name)
	}
	idt, err := c.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("oidc %s: verify id_token: %w", c.desc.Name, err)
	}
	if nonce != "" && idt.Nonce != nonce {
		return nil, fmt.Errorf("oidc %s: nonce mismatch", c.desc.Name)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idt.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc %s: claims: %w", c.desc.Name, err)
	}

	attrs := map[string]string{}
	if claims.Picture != "" {
		attrs["picture"] = claims.Picture
	}
	if claims.EmailVerified {
		attrs["email_verified"] = "true"
	}
	return &provider.Principal{
		Subject:    idt.Subject,
		Provider:   c.desc.Name,
		Email:      claims.Email,
		Name:       claims.Name,
		Attributes: attrs,
	}, nil
}

// LogoutURL reports the RP-initiated logout endpoint, when the provider has one.
func (c *Client) LogoutURL() (string, bool) {
	return c.desc.LogoutEndpoint, c.desc.LogoutEndpoint != ""
}

// isUserCaused distingue errores OAuth causados por el usuario de fallos del
// provider. Los primeros son reintentables desde SELECT.
func isUserCaused(code string) bool {
	switch code {
	case "access_denied", "consent_required", "login_required", "interaction_required":
		return true
	}
	return false
}
