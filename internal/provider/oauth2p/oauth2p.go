// Package oauth2p implements a plain OAuth2 provider client (GitHub-style):
// no ID token, a separate userinfo call resolves the principal.
package oauth2p

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/davidcastane/delega/internal/provider"
)

// Options configure a Client. AuthURL/TokenURL/UserinfoURL default to GitHub.
type Options struct {
	Name        string
	DisplayName string
	Enabled     bool

	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL        string
	TokenURL       string
	UserinfoURL    string
	LogoutEndpoint string

	HTTPTimeout time.Duration
}

const (
	githubAuthURL     = "https://github.com/login/oauth/authorize"
	githubTokenURL    = "https://github.com/login/oauth/access_token"
	githubUserinfoURL = "https://api.github.com/user"
)

// Client is a plain OAuth2 provider client.
type Client struct {
	desc        provider.Descriptor
	conf        *oauth2.Config
	userinfoURL string
	http        *http.Client
}

// New builds the client. No network calls at construction.
func New(opts Options) (*Client, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("oauth2 %s: client_id/client_secret requeridos", opts.Name)
	}
	authURL := opts.AuthURL
	if authURL == "" {
		authURL = githubAuthURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = githubTokenURL
	}
	userinfoURL := opts.UserinfoURL
	if userinfoURL == "" {
		userinfoURL = githubUserinfoURL
	}
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	return &Client{
		desc: provider.Descriptor{
			Name:             opts.Name,
			DisplayName:      opts.DisplayName,
			Kind:             provider.KindOAuth2,
			RedirectEndpoint: authURL,
			LogoutEndpoint:   opts.LogoutEndpoint,
			Enabled:          opts.Enabled,
		},
		conf: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       scopes,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		userinfoURL: userinfoURL,
		http:        &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Descriptor() provider.Descriptor { return c.desc }

// AuthorizeURL builds the authorization URL. Plain OAuth2 has no nonce
// support; the correlation token in state is the only binding.
func (c *Client) AuthorizeURL(_ context.Context, state, _ string) (string, error) {
	return c.conf.AuthCodeURL(state), nil
}

// Validate exchanges the callback code and fetches userinfo.
func (c *Client) Validate(ctx context.Context, params url.Values, _ string) (*provider.Principal, error) {
	if e := params.Get("error"); e != "" {
		if e == "access_denied" {
			return nil, fmt.Errorf("%w: %s", provider.ErrRejected, e)
		}
		return nil, fmt.Errorf("oauth2 %s: provider error: %s", c.desc.Name, e)
	}
	code := params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("oauth2 %s: callback sin code", c.desc.Name)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth2 %s: exchange: %w", c.desc.Name, err)
	}
	return c.fetchUserinfo(ctx, tok.AccessToken)
}

func (c *Client) fetchUserinfo(ctx context.Context, accessToken string) (*provider.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth2 %s: userinfo: %w", c.desc.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth2 %s: userinfo status %d", c.desc.Name, resp.StatusCode)
	}

	// Acepta tanto el shape de GitHub (id numérico, login) como sub/email genéricos.
	var ui struct {
		ID    json.Number `json:"id"`
		Sub   string      `json:"sub"`
		Login string      `json:"login"`
		Email string      `json:"email"`
		Name  string      `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ui); err != nil {
		return nil, fmt.Errorf("oauth2 %s: userinfo decode: %w", c.desc.Name, err)
	}

	sub := ui.Sub
	if sub == "" {
		sub = ui.ID.String()
	}
	if sub == "" || sub == "0" {
		return nil, fmt.Errorf("oauth2 %s: userinfo sin subject", c.desc.Name)
	}

	attrs := map[string]string{}
	if ui.Login != "" {
		attrs["login"] = ui.Login
	}
	return &provider.Principal{
		Subject:    sub,
		Provider:   c.desc.Name,
		Email:      ui.Email,
		Name:       ui.Name,
		Attributes: attrs,
	}, nil
}

// LogoutURL reports the configured logout endpoint, if any.
func (c *Client) LogoutURL() (string, bool) {
	return c.desc.LogoutEndpoint, c.desc.LogoutEndpoint != ""
}
