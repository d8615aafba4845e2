package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/vietddude/optionvault/internal/core/config"
	"github.com/vietddude/optionvault/internal/infra/storage/postgres"
)

// openDB connects to the configured database or exits.
func openDB(ctx context.Context, cfg *config.AppConfig) *postgres.DB {
	if cfg.Database.URL == "" {
		slog.Error("database.url is not set")
		os.Exit(1)
	}
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return db
}
