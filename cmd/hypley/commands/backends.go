package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hypley-ai/hypley-live/pkg/core/live"
	"github.com/hypley-ai/hypley-live/pkg/core/persona"
	"github.com/hypley-ai/hypley-live/pkg/core/providers/gemini"
	"github.com/hypley-ai/hypley-live/pkg/gateway/config"
	"github.com/hypley-ai/hypley-live/pkg/gateway/handlers"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

// historyStore is the opened history backend. Ping is nil for the memory
// store.
type historyStore struct {
	store.Store
	Ping func(context.Context) error
}

// openHistoryStore opens Postgres when a database url is configured and the
// in-memory store otherwise.
func openHistoryStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (historyStore, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("HYPLEY_DATABASE_URL not set; conversation history is kept in memory")
		return historyStore{Store: store.NewMemory()}, nil
	}
	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		return historyStore{}, err
	}
	if cfg.MigrateOnStart {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return historyStore{}, err
		}
	}
	return historyStore{Store: pg, Ping: pg.Ping}, nil
}

// modelBackends are the Gemini collaborators of the gateway and the local
// session.
type modelBackends struct {
	Dialer live.Dialer
	Text   handlers.TextCompleter
}

func newModelBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (modelBackends, error) {
	if cfg.GeminiAPIKey == "" {
		return modelBackends{}, fmt.Errorf("GEMINI_API_KEY (or GOOGLE_API_KEY) is required")
	}
	client, err := gemini.New(ctx, cfg.GeminiAPIKey, gemini.WithLogger(logger))
	if err != nil {
		return modelBackends{}, err
	}
	return modelBackends{Dialer: client.Dialer(), Text: client.Text()}, nil
}

func loadCatalog(cfg config.Config) (*persona.Catalog, error) {
	if cfg.AgentCatalogPath == "" {
		return persona.DefaultCatalog(), nil
	}
	c, err := persona.LoadCatalogFile(cfg.AgentCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load agent catalog: %w", err)
	}
	return c, nil
}
