package identity_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tripwise-backend/internal/identity"
)

func newUserInfoServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		switch r.Header.Get("Authorization") {
		case "Bearer free-token":
			_ = json.NewEncoder(w).Encode(map[string]any{"sub": "user_1", "email": "Ada@Example.com"})
		case "Bearer paid-token":
			_ = json.NewEncoder(w).Encode(map[string]any{"sub": "user_2", "email": "grace@example.com", "plan": "Monthly"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
}

func provider(url string) *identity.OAuthProvider {
	return identity.NewOAuthProvider(url, "monthly", time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIdentifyResolvesToken(t *testing.T) {
	var calls int32
	srv := newUserInfoServer(t, &calls)
	defer srv.Close()
	p := provider(srv.URL)

	r := httptest.NewRequest(http.MethodPost, "/api/aimodel", nil)
	r.Header.Set("Authorization", "Bearer free-token")
	c, err := p.Identify(r)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if c.ID != "user_1" || c.Entitled {
		t.Errorf("unexpected caller %+v", c)
	}
	if c.Key() != "ada@example.com" {
		t.Errorf("expected lowercased email key, got %q", c.Key())
	}

	// second lookup is served from cache
	if _, err := p.Identify(r); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 userinfo call, got %d", got)
	}
}

func TestIdentifyEntitledPlan(t *testing.T) {
	var calls int32
	srv := newUserInfoServer(t, &calls)
	defer srv.Close()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer paid-token")
	c, err := provider(srv.URL).Identify(r)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Entitled {
		t.Error("expected entitled caller")
	}
}

func TestIdentifyInvalidToken(t *testing.T) {
	var calls int32
	srv := newUserInfoServer(t, &calls)
	defer srv.Close()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer nope")
	_, err := provider(srv.URL).Identify(r)
	if !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIdentifyAnonymous(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:5555"
	c, err := provider("http://unused.invalid").Identify(r)
	if err != nil {
		t.Fatal(err)
	}
	if c.Authenticated() {
		t.Error("caller without token must not be authenticated")
	}
	if c.Key() != "203.0.113.9" {
		t.Errorf("expected address key, got %q", c.Key())
	}
}

func TestCallerKeyFallbacks(t *testing.T) {
	tests := []struct {
		caller identity.Caller
		want   string
	}{
		{identity.Caller{Email: "X@Y.com", Address: "1.2.3.4"}, "x@y.com"},
		{identity.Caller{Address: "1.2.3.4"}, "1.2.3.4"},
		{identity.Caller{}, identity.Anonymous},
	}
	for _, tt := range tests {
		if got := tt.caller.Key(); got != tt.want {
			t.Errorf("Key() = %q, want %q", got, tt.want)
		}
	}
}

func TestClientAddress(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		header     string
		value      string
		want       string
	}{
		{"peer with port", "203.0.113.9:5555", "", "", "203.0.113.9"},
		{"forwarded for is ignored", "203.0.113.9:5555", "X-Forwarded-For", "198.51.100.7, 10.0.0.1", "203.0.113.9"},
		{"real ip is ignored", "203.0.113.9:5555", "X-Real-IP", "198.51.100.8", "203.0.113.9"},
		{"rewritten by a trusted proxy", "198.51.100.7", "", "", "198.51.100.7"},
		{"ipv6 peer", "[2001:db8::1]:443", "", "", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			if got := identity.ClientAddress(r); got != tt.want {
				t.Errorf("ClientAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}
