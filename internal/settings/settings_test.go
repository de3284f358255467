package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"tripwise-backend/internal/config"
)

type fakeStore struct {
	revisions []AdminConfig
	err       error
}

func (f *fakeStore) LatestAdminConfig(context.Context) (*AdminConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.revisions) == 0 {
		return nil, nil
	}
	c := f.revisions[len(f.revisions)-1]
	return &c, nil
}

func (f *fakeStore) SaveAdminConfig(_ context.Context, c AdminConfig) error {
	if f.err != nil {
		return f.err
	}
	f.revisions = []AdminConfig{c}
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var static = config.Generation{
	Provider: config.ProviderOpenRouter,
	Model:    "env-model",
	APIKey:   "env-key",
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
		want  GenerationConfig
	}{
		{"nothing stored", &fakeStore{}, GenerationConfig{"openrouter", "env-model", "env-key"}},
		{"override", &fakeStore{revisions: []AdminConfig{{Model: "m2", Credential: "k2"}}}, GenerationConfig{"openrouter", "m2", "k2"}},
		{"gemini override", &fakeStore{revisions: []AdminConfig{{Provider: "gemini", Model: "gemini-x", Credential: "g"}}}, GenerationConfig{"gemini", "gemini-x", "g"}},
		{"override without credential", &fakeStore{revisions: []AdminConfig{{Model: "m2"}}}, GenerationConfig{"openrouter", "env-model", "env-key"}},
		{"store error", &fakeStore{err: errors.New("down")}, GenerationConfig{"openrouter", "env-model", "env-key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewResolver(tt.store, static, discard()).Resolve(context.Background())
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveGeminiStatic(t *testing.T) {
	g := config.Generation{Provider: config.ProviderGemini, GeminiModel: "gemini-x", GeminiAPIKey: "g-key"}
	got := NewResolver(&fakeStore{}, g, discard()).Resolve(context.Background())
	if got.Model != "gemini-x" || got.Credential != "g-key" || got.Provider != config.ProviderGemini {
		t.Errorf("unexpected %+v", got)
	}
}

func TestResolveOverrideKeepsItsProvider(t *testing.T) {
	g := config.Generation{Provider: config.ProviderGemini, GeminiModel: "gemini-x", GeminiAPIKey: "g-key"}
	st := &fakeStore{revisions: []AdminConfig{{Model: "openai/gpt-4o-mini", Credential: "sk-or"}}}
	got := NewResolver(st, g, discard()).Resolve(context.Background())
	want := GenerationConfig{Provider: config.ProviderOpenRouter, Model: "openai/gpt-4o-mini", Credential: "sk-or"}
	if got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestUpdateProvider(t *testing.T) {
	st := &fakeStore{}
	g := config.Generation{Provider: config.ProviderGemini, GeminiModel: "gemini-x", GeminiAPIKey: "g-key"}
	svc := NewService(st, g, nil, discard())
	ctx := context.Background()

	v, err := svc.Update(ctx, "root@example.com", Update{Model: "gemini-2.5-pro", Credential: "g2"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Provider != config.ProviderGemini || st.revisions[0].Provider != config.ProviderGemini {
		t.Fatalf("a blank provider should pin the deployment provider, got %+v", st.revisions[0])
	}

	if _, err := svc.Update(ctx, "root@example.com", Update{Provider: "OpenRouter", Model: "openai/gpt-4o-mini"}); err != nil {
		t.Fatal(err)
	}
	stored := st.revisions[0]
	if stored.Provider != config.ProviderOpenRouter || stored.Credential != "" {
		t.Fatalf("switching provider must not carry the old credential, got %+v", stored)
	}

	if _, err := svc.Update(ctx, "root@example.com", Update{Provider: "bedrock", Model: "m"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestResolveEmptyCredential(t *testing.T) {
	got := NewResolver(&fakeStore{}, config.Generation{Provider: "openrouter", Model: "m"}, discard()).Resolve(context.Background())
	if got.Credential != "" {
		t.Errorf("expected empty credential, got %q", got.Credential)
	}
}

func TestUpdateKeepsCredentialAndEmails(t *testing.T) {
	st := &fakeStore{}
	svc := NewService(st, static, nil, discard())
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()

	v, err := svc.Update(ctx, "root@example.com", Update{Model: "m1", Credential: "secret", AdminEmails: []string{" Ops@Example.com", "ops@example.com"}})
	if err != nil {
		t.Fatal(err)
	}
	if !v.HasCredential || len(v.AdminEmails) != 1 || v.AdminEmails[0] != "ops@example.com" {
		t.Fatalf("unexpected view %+v", v)
	}

	v, err = svc.Update(ctx, "ops@example.com", Update{Model: "m2"})
	if err != nil {
		t.Fatal(err)
	}
	stored := st.revisions[len(st.revisions)-1]
	if stored.Credential != "secret" {
		t.Errorf("blank credential must keep previous, got %q", stored.Credential)
	}
	if len(stored.AdminEmails) != 1 {
		t.Errorf("empty email set must keep previous, got %v", stored.AdminEmails)
	}
	if stored.Model != "m2" || stored.UpdatedBy != "ops@example.com" {
		t.Errorf("unexpected revision %+v", stored)
	}
	if v.Model != "m2" {
		t.Errorf("view model = %q", v.Model)
	}
}

func TestUpdateRequiresModel(t *testing.T) {
	svc := NewService(&fakeStore{}, static, nil, discard())
	if _, err := svc.Update(context.Background(), "a", Update{Model: "  "}); !errors.Is(err, ErrModelRequired) {
		t.Fatalf("expected ErrModelRequired, got %v", err)
	}
}

func TestGetNeverReturnsCredential(t *testing.T) {
	st := &fakeStore{revisions: []AdminConfig{{Model: "m", Credential: "secret"}}}
	v, err := NewService(st, static, nil, discard()).Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !v.HasCredential || v.Model != "m" {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestGetFallsBackToStatic(t *testing.T) {
	v, err := NewService(&fakeStore{}, static, []string{"a@example.com"}, discard()).Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v.Model != "env-model" || !v.HasCredential || len(v.AdminEmails) != 1 {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestIsAdmin(t *testing.T) {
	st := &fakeStore{revisions: []AdminConfig{{Model: "m", AdminEmails: []string{"Stored@Example.com"}}}}
	svc := NewService(st, static, []string{"env@example.com"}, discard())
	ctx := context.Background()

	for email, want := range map[string]bool{
		"ENV@example.com":    true,
		"stored@example.com": true,
		"other@example.com":  false,
		"":                   false,
	} {
		if got := svc.IsAdmin(ctx, email); got != want {
			t.Errorf("IsAdmin(%q) = %v, want %v", email, got, want)
		}
	}

	st.err = errors.New("down")
	if svc.IsAdmin(ctx, "stored@example.com") {
		t.Error("store failure must not grant admin")
	}
	if !svc.IsAdmin(ctx, "env@example.com") {
		t.Error("env admins do not need the store")
	}
}
