package webflow

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/davidcastane/delega/internal/provider"
)

// ErrUnresolved: ni el contexto pendiente ni el callback identifican provider.
var ErrUnresolved = errors.New("webflow: provider could not be resolved")

// ErrMismatch: el provider del callback no coincide con el registrado en el
// contexto pendiente. Posible callback cruzado o forjado.
var ErrMismatch = errors.New("webflow: provider mismatch")

// ResolveProvider determines which provider a callback belongs to.
//
// The recorded pending context is authoritative: the callback's client_name
// parameter (when present) must agree with it. With no recorded provider the
// parameter alone decides; with neither, resolution fails.
func ResolveProvider(pc *PendingContext, params url.Values) (string, error) {
	claimed := params.Get(provider.CallbackParamClientName)

	switch {
	case pc.Provider != "" && claimed != "" && claimed != pc.Provider:
		return "", fmt.Errorf("%w: recorded %q, callback claims %q", ErrMismatch, pc.Provider, claimed)
	case pc.Provider != "":
		return pc.Provider, nil
	case claimed != "":
		return claimed, nil
	default:
		return "", ErrUnresolved
	}
}
