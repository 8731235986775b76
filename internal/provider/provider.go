// Package provider defines the pluggable identity-provider client capability.
//
// Each external identity provider (OIDC, plain OAuth2, CAS) is a strategy
// behind the Client interface; the Registry holds the configured set in
// registration order. Protocol internals live in the sub-packages.
package provider

import (
	"context"
	"errors"
	"net/url"
)

// Kind indicates the authentication protocol of a provider.
type Kind string

const (
	KindOAuth2 Kind = "oauth2"
	KindOIDC   Kind = "oidc"
	KindSAML   Kind = "saml"
	KindCAS    Kind = "cas"
)

// CallbackParamClientName is the callback-parameter convention providers use
// to embed their own identifier in the callback request.
const CallbackParamClientName = "client_name"

// Descriptor describes a configured provider. Immutable after registry
// construction.
type Descriptor struct {
	Name             string
	DisplayName      string
	Kind             Kind
	RedirectEndpoint string // authorization endpoint the browser is sent to
	LogoutEndpoint   string // empty when the provider has no logout endpoint
	Enabled          bool
}

// Principal is the verified identity a provider client yields on a valid
// callback.
type Principal struct {
	Subject    string
	Provider   string
	Email      string
	Name       string
	Attributes map[string]string
}

// Client is the protocol capability for one provider.
type Client interface {
	Descriptor() Descriptor

	// AuthorizeURL builds the URL the browser is redirected to, carrying the
	// correlation token (state) and, for OIDC, the nonce.
	AuthorizeURL(ctx context.Context, state, nonce string) (string, error)

	// Validate resolves the raw callback parameters into a verified
	// Principal, or an error. A user-caused rejection (denied consent,
	// cancelled login) wraps ErrRejected.
	Validate(ctx context.Context, params url.Values, nonce string) (*Principal, error)
}

// LogoutNotifier is an optional capability: providers that support
// single sign-out expose the URL to notify on session termination.
type LogoutNotifier interface {
	LogoutURL() (string, bool)
}

// ErrRejected marks a provider-side rejection caused by the user
// (denied consent, expired provider session). Safe to retry.
var ErrRejected = errors.New("provider rejected the authentication")
