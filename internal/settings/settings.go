// Package settings manages the admin-editable generation settings and
// resolves which model and credential a generation call uses.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tripwise-backend/internal/config"
)

// AdminConfig is one stored revision. Revisions are insert-only; the
// newest one is in effect.
type AdminConfig struct {
	// Provider names the generator the model and credential belong to.
	// Revisions written before it existed leave it empty, which means
	// openrouter.
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model"`
	Credential  string    `json:"credential"`
	AdminEmails []string  `json:"admin_emails"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedBy   string    `json:"updated_by"`
}

// ConfigStore persists admin config revisions.
type ConfigStore interface {
	// LatestAdminConfig returns nil and no error when nothing is stored.
	LatestAdminConfig(ctx context.Context) (*AdminConfig, error)
	// SaveAdminConfig inserts a revision and prunes the older ones.
	SaveAdminConfig(ctx context.Context, cfg AdminConfig) error
}

var (
	ErrModelRequired   = errors.New("settings: model is required")
	ErrUnknownProvider = errors.New("settings: unknown provider")
)

// View is an admin config as shown to admins. The credential is reduced
// to whether one is set.
type View struct {
	Provider      string
	Model         string
	HasCredential bool
	AdminEmails   []string
	UpdatedAt     time.Time
	UpdatedBy     string
}

// Update is a requested change. A blank Provider keeps the stored one, or
// the deployment's provider when nothing is stored. A blank Credential
// keeps the stored value unless the provider changes. An empty AdminEmails
// keeps the stored list.
type Update struct {
	Provider    string
	Model       string
	Credential  string
	AdminEmails []string
}

type Service struct {
	store     ConfigStore
	static    config.Generation
	envAdmins []string
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store ConfigStore, static config.Generation, envAdmins []string, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		static:    static,
		envAdmins: normalizeEmails(envAdmins),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Get(ctx context.Context) (View, error) {
	cur, err := s.store.LatestAdminConfig(ctx)
	if err != nil {
		return View{}, fmt.Errorf("load admin config: %w", err)
	}
	if cur == nil {
		model, key := staticCredentials(s.static)
		return View{Provider: s.static.Provider, Model: model, HasCredential: key != "", AdminEmails: s.envAdmins}, nil
	}
	return view(*cur), nil
}

func (s *Service) Update(ctx context.Context, by string, u Update) (View, error) {
	model := strings.TrimSpace(u.Model)
	if model == "" {
		return View{}, ErrModelRequired
	}
	provider := strings.ToLower(strings.TrimSpace(u.Provider))
	if provider != "" && provider != config.ProviderOpenRouter && provider != config.ProviderGemini {
		return View{}, fmt.Errorf("%w: %s", ErrUnknownProvider, u.Provider)
	}
	prev, err := s.store.LatestAdminConfig(ctx)
	if err != nil {
		return View{}, fmt.Errorf("load admin config: %w", err)
	}
	if provider == "" {
		provider = s.static.Provider
		if prev != nil {
			provider = prev.provider()
		}
	}
	next := AdminConfig{
		Provider:    provider,
		Model:       model,
		Credential:  strings.TrimSpace(u.Credential),
		AdminEmails: normalizeEmails(u.AdminEmails),
		UpdatedAt:   s.now().UTC(),
		UpdatedBy:   by,
	}
	if prev != nil {
		if next.Credential == "" && prev.provider() == provider {
			next.Credential = prev.Credential
		}
		if len(next.AdminEmails) == 0 {
			next.AdminEmails = prev.AdminEmails
		}
	}
	if err := s.store.SaveAdminConfig(ctx, next); err != nil {
		return View{}, fmt.Errorf("save admin config: %w", err)
	}
	s.logger.Info("admin config updated", "provider", next.Provider, "model", next.Model, "by", by, "credential_changed", u.Credential != "")
	return view(next), nil
}

// IsAdmin checks the deployment admin list first, then the stored one.
// Store failures are logged and treated as "not listed".
func (s *Service) IsAdmin(ctx context.Context, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if contains(s.envAdmins, email) {
		return true
	}
	cur, err := s.store.LatestAdminConfig(ctx)
	if err != nil {
		s.logger.Warn("admin email lookup failed", "error", err)
		return false
	}
	return cur != nil && contains(normalizeEmails(cur.AdminEmails), email)
}

func (c AdminConfig) provider() string {
	if c.Provider == "" {
		return config.ProviderOpenRouter
	}
	return c.Provider
}

func view(c AdminConfig) View {
	return View{
		Provider:      c.provider(),
		Model:         c.Model,
		HasCredential: c.Credential != "",
		AdminEmails:   append([]string(nil), c.AdminEmails...),
		UpdatedAt:     c.UpdatedAt,
		UpdatedBy:     c.UpdatedBy,
	}
}

func normalizeEmails(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
