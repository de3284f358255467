package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tripwise-backend/internal/assistant"
	"tripwise-backend/internal/config"
	"tripwise-backend/internal/conversation"
	"tripwise-backend/internal/identity"
	"tripwise-backend/internal/logger"
	"tripwise-backend/internal/quota"
	"tripwise-backend/internal/server"
	"tripwise-backend/internal/settings"
	"tripwise-backend/internal/store"
	"tripwise-backend/internal/trips"
	"tripwise-backend/internal/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tripwise-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			log.Warn("store close failed", "error", err)
		}
	}()

	prompts, err := assistant.LoadPrompts(cfg.Assistant.PromptsFile)
	if err != nil {
		return err
	}

	engine := assistant.NewEngine(assistant.EngineOptions{
		Prompts:  prompts,
		Resolver: settings.NewResolver(st, cfg.Generation, log),
		Gate:     quota.NewGate(quota.NewLimiterBackend(cfg.Quota.FreeCredits, cfg.Quota.RefillInterval), log),
		Generators: map[string]assistant.Generator{
			config.ProviderOpenRouter: assistant.NewOpenAIGenerator(cfg.Generation.BaseURL, cfg.Generation.Timeout),
			config.ProviderGemini:     assistant.NewGeminiGenerator(cfg.Generation.GeminiBaseURL, cfg.Generation.Timeout),
		},
		FinalTurnCost: cfg.Quota.FinalTurnCost,
		Debug:         cfg.App.Development(),
		Logger:        log,
	})

	s := server.NewServer(cfg, server.Deps{
		Engine:   engine,
		Identity: identity.NewOAuthProvider(cfg.Identity.UserInfoURL, cfg.Identity.EntitledPlan, cfg.Identity.CacheTTL, log),
		Settings: settings.NewService(st, cfg.Generation, cfg.Admin.Emails, log),
		Trips:    trips.NewService(st, log),
		Users:    users.NewService(st, log, cfg.Admin.UserRefresh),
		Sessions: conversation.NewRegistry(cfg.Server.SessionTTL),
		Health:   st,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server",
			"addr", srv.Addr,
			"env", cfg.App.Env,
			"provider", cfg.Generation.Provider,
			"store", cfg.Store.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
