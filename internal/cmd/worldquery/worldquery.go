// Package worldquery parses world query command flags and starts the
// projection runtime.
package worldquery

import (
	"context"
	"flag"
	"log"
	"time"

	entrypoint "github.com/louisbranch/worldstate/internal/platform/cmd"
	"github.com/louisbranch/worldstate/internal/worldquery/projection"
	"github.com/louisbranch/worldstate/internal/worldquery/storage/sqlite"
)

// Config holds world query command configuration.
type Config struct {
	DBPath       string        `env:"WORLDSTATE_WORLDQUERY_DB" envDefault:"worldquery.db"`
	PollInterval time.Duration `env:"WORLDSTATE_WORLDQUERY_POLL_INTERVAL" envDefault:"2s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the world query SQLite database")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "How often to replay new journal events")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the world query projection service: it opens the backing
// store, brings every known world up to date, and then keeps replaying
// new journal events until the context is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorldQuery, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()

		projector, err := projection.InitializeProjector(projection.ProjectorConfig{
			Slices:     store,
			Events:     store,
			Watermarks: store,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := projection.ShutdownProjector(); err != nil {
				log.Printf("shutdown projector: %v", err)
			}
		}()

		if err := projector.CatchUpAll(ctx); err != nil {
			return err
		}
		log.Printf("world query projection running (db=%s poll=%s)", cfg.DBPath, cfg.PollInterval)

		interval := cfg.PollInterval
		if interval <= 0 {
			interval = 2 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := projector.CatchUpAll(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					log.Printf("catch up projections: %v", err)
				}
			}
		}
	})
}
