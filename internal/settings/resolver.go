package settings

import (
	"context"
	"log/slog"
	"strings"

	"tripwise-backend/internal/config"
)

// GenerationConfig is what a single generation call runs with.
type GenerationConfig struct {
	Provider   string
	Model      string
	Credential string
}

// Resolver prefers the stored admin override and falls back to the
// deployment configuration.
type Resolver struct {
	store  ConfigStore
	static config.Generation
	logger *slog.Logger
}

func NewResolver(store ConfigStore, static config.Generation, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, static: static, logger: logger}
}

// Resolve never fails. An empty Credential in the result means nothing is
// configured and the caller must not attempt generation. A stored override
// carries its own provider, so it is never sent to the deployment's
// generator when the two differ.
func (r *Resolver) Resolve(ctx context.Context) GenerationConfig {
	cur, err := r.store.LatestAdminConfig(ctx)
	if err != nil {
		r.logger.Warn("admin config lookup failed, using static generation config", "error", err)
	}
	if err == nil && cur != nil && strings.TrimSpace(cur.Model) != "" && strings.TrimSpace(cur.Credential) != "" {
		return GenerationConfig{Provider: cur.provider(), Model: cur.Model, Credential: cur.Credential}
	}
	model, key := staticCredentials(r.static)
	return GenerationConfig{Provider: r.static.Provider, Model: model, Credential: key}
}

func staticCredentials(g config.Generation) (model, key string) {
	if g.Provider == config.ProviderGemini {
		return g.GeminiModel, g.GeminiAPIKey
	}
	return g.Model, g.APIKey
}
