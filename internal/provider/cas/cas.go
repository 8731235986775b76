// Package cas implements a CAS protocol client: login redirect plus
// serviceValidate ticket validation (CAS 2.0 XML payload).
//
// CAS has no state parameter; the correlation token rides in a relay query
// parameter appended to the service URL, which CAS echoes back untouched.
package cas

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/davidcastane/delega/internal/provider"
)

// RelayParam carries the correlation token through the CAS round trip.
const RelayParam = "relay"

// Options configure a Client.
type Options struct {
	Name        string
	DisplayName string
	Enabled     bool

	// BaseURL is the CAS server root, e.g. https://cas.example.org/cas
	BaseURL     string
	RedirectURL string // our callback endpoint

	LogoutEndpoint string
	HTTPTimeout    time.Duration
}

// Client is a CAS provider client.
type Client struct {
	desc        provider.Descriptor
	baseURL     string
	redirectURL string
	http        *http.Client
}

// New builds the client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("cas %s: base_url requerido", opts.Name)
	}
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logout := opts.LogoutEndpoint
	if logout == "" {
		logout = base + "/logout"
	}
	return &Client{
		desc: provider.Descriptor{
			Name:             opts.Name,
			DisplayName:      opts.DisplayName,
			Kind:             provider.KindCAS,
			RedirectEndpoint: base + "/login",
			LogoutEndpoint:   logout,
			Enabled:          opts.Enabled,
		},
		baseURL:     base,
		redirectURL: opts.RedirectURL,
		http:        &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Descriptor() provider.Descriptor { return c.desc }

// serviceURL is the callback URL with the relay token attached. serviceValidate
// must receive the exact same value that login did, relay included.
func (c *Client) serviceURL(state string) string {
	sep := "?"
	if strings.Contains(c.redirectURL, "?") {
		sep = "&"
	}
	return c.redirectURL + sep + RelayParam + "=" + url.QueryEscape(state)
}

// AuthorizeURL builds the CAS login URL. The nonce is unused: CAS binds the
// ticket to the service URL instead.
func (c *Client) AuthorizeURL(_ context.Context, state, _ string) (string, error) {
	u, err := url.Parse(c.baseURL + "/login")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("service", c.serviceURL(state))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type validateResponse struct {
	XMLName xml.Name         `xml:"serviceResponse"`
	Success *validateSuccess `xml:"authenticationSuccess"`
	Failure *validateFailure `xml:"authenticationFailure"`
}

type validateSuccess struct {
	User       string `xml:"user"`
	Attributes struct {
		Email       string `xml:"mail"`
		DisplayName string `xml:"displayName"`
	} `xml:"attributes"`
}

type validateFailure struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// Validate exchanges the service ticket via serviceValidate.
func (c *Client) Validate(ctx context.Context, params url.Values, _ string) (*provider.Principal, error) {
	ticket := params.Get("ticket")
	if ticket == "" {
		return nil, fmt.Errorf("cas %s: callback sin ticket", c.desc.Name)
	}
	relay := params.Get(RelayParam)

	u, err := url.Parse(c.baseURL + "/serviceValidate")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("service", c.serviceURL(relay))
	q.Set("ticket", ticket)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cas %s: serviceValidate: %w", c.desc.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("cas %s: serviceValidate read: %w", c.desc.Name, err)
	}
	var vr validateResponse
	if err := xml.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("cas %s: serviceValidate parse: %w", c.desc.Name, err)
	}
	if vr.Failure != nil {
		return nil, fmt.Errorf("cas %s: validación falló (%s): %s",
			c.desc.Name, vr.Failure.Code, strings.TrimSpace(vr.Failure.Message))
	}
	if vr.Success == nil || vr.Success.User == "" {
		return nil, fmt.Errorf("cas %s: respuesta sin authenticationSuccess", c.desc.Name)
	}

	return &provider.Principal{
		Subject:  vr.Success.User,
		Provider: c.desc.Name,
		Email:    vr.Success.Attributes.Email,
		Name:     vr.Success.Attributes.DisplayName,
	}, nil
}

// LogoutURL reports the CAS logout endpoint.
func (c *Client) LogoutURL() (string, bool) {
	return c.desc.LogoutEndpoint, c.desc.LogoutEndpoint != ""
}
