package store

import (
	"context"
	"fmt"
	"log/slog"

	"tripwise-backend/internal/config"
	"tripwise-backend/internal/db"
	"tripwise-backend/internal/settings"
	"tripwise-backend/internal/trips"
	"tripwise-backend/internal/users"
)

// Backend is everything the service needs from a store.
type Backend interface {
	settings.ConfigStore
	trips.Store
	users.Store
	// Ping reports whether the backend can serve requests.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	_ Backend = (*MemoryStore)(nil)
	_ Backend = (*FileStore)(nil)
	_ Backend = (*PostgresStore)(nil)
	_ Backend = (*MongoStore)(nil)
)

// Open builds the backend named by cfg.Backend. The postgres backend runs
// the embedded migrations before returning.
func Open(ctx context.Context, cfg config.Store, logger *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		logger.Warn("using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil
	case config.BackendFile:
		return NewFileStore(cfg.File)
	case config.BackendPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := database.RunMigrations(ctx, db.Migrations()); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("database connection established")
		return NewPostgresStore(database), nil
	case config.BackendMongo:
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.Info("mongo connection established", "database", cfg.MongoDatabase)
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
