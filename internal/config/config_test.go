package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Generation.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("unexpected base url %s", cfg.Generation.BaseURL)
	}
	if cfg.Generation.Model != "openrouter/polaris-alpha" {
		t.Errorf("unexpected model %s", cfg.Generation.Model)
	}
	if cfg.Quota.FinalTurnCost != 5 {
		t.Errorf("expected final turn cost 5, got %d", cfg.Quota.FinalTurnCost)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tripwise.yaml")
	content := `
server:
  port: "9090"
  session_ttl: 10m
quota:
  final_turn_cost: 3
store:
  backend: file
  file: /tmp/trips.json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.SessionTTL != 10*time.Minute {
		t.Errorf("expected session ttl 10m, got %v", cfg.Server.SessionTTL)
	}
	if cfg.Quota.FinalTurnCost != 3 {
		t.Errorf("expected cost 3, got %d", cfg.Quota.FinalTurnCost)
	}
	if cfg.Store.Backend != BackendFile {
		t.Errorf("expected file backend, got %s", cfg.Store.Backend)
	}
	// untouched sections keep defaults
	if cfg.Quota.FreeCredits != 10 {
		t.Errorf("expected default free credits, got %d", cfg.Quota.FreeCredits)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/tripwise.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("GENERATION_PROVIDER", "Gemini")
	t.Setenv("ADMIN_EMAILS", "a@example.com, b@example.com ,")
	t.Setenv("QUOTA_REFILL_INTERVAL", "1h")
	t.Setenv("SECURE_COOKIES", "yes")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("USER_REFRESH_INTERVAL", "2m")
	t.Setenv("QUOTA_FREE_CREDITS", "not-a-number")

	cfg := Defaults()
	applyEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Generation.APIKey != "sk-test" {
		t.Errorf("expected api key from env, got %q", cfg.Generation.APIKey)
	}
	if cfg.Generation.Provider != ProviderGemini {
		t.Errorf("expected provider to be lowercased, got %s", cfg.Generation.Provider)
	}
	if len(cfg.Admin.Emails) != 2 || cfg.Admin.Emails[1] != "b@example.com" {
		t.Errorf("unexpected admin emails %v", cfg.Admin.Emails)
	}
	if cfg.Quota.RefillInterval != time.Hour {
		t.Errorf("expected 1h refill, got %v", cfg.Quota.RefillInterval)
	}
	if !cfg.Server.SecureCookies {
		t.Error("expected secure cookies")
	}
	if !cfg.Server.TrustProxy {
		t.Error("expected proxy headers to be trusted")
	}
	if cfg.Admin.UserRefresh != 2*time.Minute {
		t.Errorf("expected a 2m user refresh, got %v", cfg.Admin.UserRefresh)
	}
	if cfg.Quota.FreeCredits != 10 {
		t.Errorf("invalid int should keep default, got %d", cfg.Quota.FreeCredits)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad provider", func(c *Config) { c.Generation.Provider = "llama" }, "generation.provider"},
		{"postgres without url", func(c *Config) { c.Store.Backend = BackendPostgres }, "DB_URL"},
		{"mongo without uri", func(c *Config) { c.Store.Backend = BackendMongo }, "MONGO_URI"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "not supported"},
		{"negative cost", func(c *Config) { c.Quota.FinalTurnCost = -1 }, "final_turn_cost"},
		{"zero refill", func(c *Config) { c.Quota.RefillInterval = 0 }, "refill_interval"},
		{"zero user refresh", func(c *Config) { c.Admin.UserRefresh = 0 }, "user_refresh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDevelopment(t *testing.T) {
	if (App{Env: "Development"}).Development() != true {
		t.Error("expected development")
	}
	if (App{Env: "production"}).Development() {
		t.Error("production is not development")
	}
}
