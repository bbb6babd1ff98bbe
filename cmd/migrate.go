package cmd

import (
	"fmt"

	"github.com/eloquentai/eloquent-chat/db"
	"github.com/eloquentai/eloquent-chat/internal/config"
)

// runMigrate applies pending database migrations and exits. The serve
// command also migrates on startup; this exists for deploy pipelines that
// migrate before rolling instances.
func runMigrate() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	logger.Info("migrations applied")
	return nil
}
