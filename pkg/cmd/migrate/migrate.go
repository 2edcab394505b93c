package migrate

import (
	"context"
	"fmt"
	"log"

	"github.com/igolaizola/goatmusic/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
}

// Run creates or updates the surveys and tasks tables.
func Run(ctx context.Context, cfg *Config) error {
	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("migrate: couldn't create: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("migrate: couldn't start: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: couldn't migrate: %w", err)
	}
	log.Printf("migrate: %s database is up to date\n", cfg.DBType)
	return nil
}
