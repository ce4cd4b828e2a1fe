package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/medialens/internal/cache"
	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/internal/prompt"
	"github.com/kiranshivaraju/medialens/internal/store"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "medialens",
	Short: "Asynchronous media analysis worker",
	Long: "medialens claims queued media analysis jobs, fetches the media from a Matrix " +
		"homeserver and stores descriptions and transcripts produced by a generative AI provider.",
	SilenceUsage: true,
	// Running the binary without a subcommand starts the worker.
	RunE: runWorker,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config (default: MEDIALENS_CONFIG env var)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig applies the --config and --debug flags on top of config.Load.
func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		if err := os.Setenv("MEDIALENS_CONFIG", cfgPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// setup loads configuration and installs the default logger. The returned
// cleanup closes the optional log file.
func setup() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, func() {}, err
	}
	logger, closeLog := config.SetupLogger(cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, func() { _ = closeLog() }, nil
}

// openStore connects to Postgres and applies pending migrations.
func openStore(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *store.PostgresStore, error) {
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return pool, store.NewPostgresStore(pool, store.WithMaxAttempts(cfg.Worker.MaxAttempts)), nil
}

// openCache returns the Redis cache, or nil when REDIS_URL is unset.
func openCache(ctx context.Context, cfg config.RedisConfig) (*cache.RedisCache, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rc, nil
}

// promptSource picks the prompt backend and wraps it in the read-through cache.
func promptSource(cfg config.PromptConfig, pg prompt.Source, c cache.Cache) (prompt.Source, error) {
	var src prompt.Source
	switch cfg.Source {
	case config.PromptSourceSupabase:
		sb, err := prompt.NewSupabaseSource(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, fmt.Errorf("create supabase prompt source: %w", err)
		}
		src = sb
	case config.PromptSourcePostgres, "":
		src = pg
	default:
		return nil, fmt.Errorf("unknown prompt source %q", cfg.Source)
	}
	if c == nil {
		return src, nil
	}
	return prompt.NewCachedSource(src, c, cfg.CacheTTL), nil
}
