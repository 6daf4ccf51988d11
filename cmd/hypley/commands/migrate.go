package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hypley-ai/hypley-live/pkg/gateway/config"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

// migrator is the part of store.Postgres the migrate command needs.
type migrator interface {
	Migrate(ctx context.Context) error
	Close()
}

type migrateDeps struct {
	loadConfig func() (config.Config, error)
	open       func(ctx context.Context, databaseURL string, maxConns int32) (migrator, error)
}

func defaultMigrateDeps() migrateDeps {
	return migrateDeps{
		loadConfig: config.LoadFromEnv,
		open: func(ctx context.Context, databaseURL string, maxConns int32) (migrator, error) {
			return store.OpenPostgres(ctx, databaseURL, maxConns)
		},
	}
}

func newMigrateCmd(g *globalOptions, deps migrateDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the history schema to HYPLEY_DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := runMigrate(cmd.Context(), deps); err != nil {
				return err
			}
			g.log().Info("history schema is up to date")
			return nil
		},
	}
}

func runMigrate(ctx context.Context, deps migrateDeps) error {
	if deps.loadConfig == nil || deps.open == nil {
		return errors.New("missing migrate dependency")
	}
	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("HYPLEY_DATABASE_URL is not set")
	}
	db, err := deps.open(ctx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(ctx)
}
