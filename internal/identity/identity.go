// Package identity resolves who is calling: a stable id, an email when
// known, the network address and whether the caller holds an elevated plan.
package identity

import (
	"net"
	"net/http"
	"strings"
)

// Anonymous is the caller key used when nothing identifies the caller.
const Anonymous = "anonymous"

type Caller struct {
	ID       string
	Email    string
	Name     string
	Picture  string
	Address  string
	Entitled bool
}

// Key is the best available identity for quota accounting.
func (c Caller) Key() string {
	if c.Email != "" {
		return strings.ToLower(c.Email)
	}
	if c.Address != "" {
		return c.Address
	}
	return Anonymous
}

func (c Caller) Authenticated() bool { return c.ID != "" }

// Provider identifies the caller of a request. Requests without
// credentials resolve to an unauthenticated Caller and a nil error.
type Provider interface {
	Identify(r *http.Request) (Caller, error)
}

// ClientAddress returns the IP of the peer. Forwarding headers are not
// read here; behind a trusted proxy the server rewrites RemoteAddr before
// identification runs.
func ClientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
