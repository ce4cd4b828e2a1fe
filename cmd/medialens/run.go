package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/medialens/internal/ai"
	"github.com/kiranshivaraju/medialens/internal/api"
	"github.com/kiranshivaraju/medialens/internal/api/handler"
	mw "github.com/kiranshivaraju/medialens/internal/api/middleware"
	"github.com/kiranshivaraju/medialens/internal/cache"
	"github.com/kiranshivaraju/medialens/internal/media"
	"github.com/kiranshivaraju/medialens/internal/observability"
	"github.com/kiranshivaraju/medialens/internal/prompt"
	"github.com/kiranshivaraju/medialens/internal/results"
	"github.com/kiranshivaraju/medialens/internal/worker"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis worker and admin API",
	Long:  "Apply migrations, start the worker loops and serve the admin API; blocks until SIGINT/SIGTERM.",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, logger, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("config loaded",
		"env", cfg.Server.Env,
		"image_provider", cfg.AI.ImageProvider,
		"video_provider", cfg.AI.VideoProvider,
		"audio_provider", cfg.AI.AudioProvider,
		"analysis_enabled", cfg.Worker.Enabled,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Observability.ServiceName, cfg.Observability.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	pool, pgStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connected, migrations applied")

	redisCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	// c stays a nil interface when Redis is disabled.
	var c cache.Cache
	if redisCache != nil {
		defer redisCache.Close()
		c = redisCache
		logger.Info("redis connected")
	}

	registry, err := ai.NewRegistry(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create provider registry: %w", err)
	}
	logger.Info("providers initialized", "providers", registry.Names())

	src, err := promptSource(cfg.Prompt, pgStore, c)
	if err != nil {
		return err
	}

	w := worker.New(worker.Deps{
		Jobs:      pgStore,
		Providers: registry,
		Fetcher:   media.NewFetcher(cfg.Media, logger),
		Prompts:   prompt.NewComposer(src),
		Results:   results.NewWriter(pgStore, cfg.Worker.MaxContentBytes),
		Cache:     c,
		Logger:    logger,
	}, cfg.Worker)

	var rateCache cache.Cache = cache.Noop{}
	if c != nil {
		rateCache = c
	}
	jobs := handler.NewJobs(pgStore, pgStore, c)
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(rateCache, 60),

		HealthHandler:      handler.NewHealthHandler(pgStore, pingerOrNil(c), registry.Names()),
		MetricsHandler:     metricsHandler,
		GetJobHandler:      jobs.Get,
		JobStatusHandler:   jobs.Status,
		ListResultsHandler: jobs.Results,
		StatsHandler:       jobs.Stats,
		RequeueHandler:     jobs.Requeue,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	workerDone := make(chan error, 1)
	go func() { workerDone <- w.Run(ctx) }()

	select {
	case err := <-errCh:
		stop()
		waitForWorker(logger, workerDone, cfg.Worker.DrainTimeout)
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received, finishing in-flight jobs")
	}

	waitForWorker(logger, workerDone, cfg.Worker.DrainTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("stopped gracefully")
	return nil
}

// waitForWorker waits for the worker to drain, giving up after timeout. Jobs
// still processing at that point are left to the lease sweep. A zero timeout
// waits indefinitely. It reports whether the worker finished.
func waitForWorker(logger *slog.Logger, done <-chan error, timeout time.Duration) bool {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case err := <-done:
		if err != nil {
			logger.Error("worker stopped with error", "error", err)
		}
		return true
	case <-expired:
		logger.Error("worker drain timed out, abandoning in-flight jobs", "timeout", timeout)
		return false
	}
}

// pingerOrNil keeps a disabled cache out of the health check.
func pingerOrNil(c cache.Cache) handler.Pinger {
	if c == nil {
		return nil
	}
	return c
}
