// Package main is the entrypoint for the fuzzjobs API server.
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

	"github.com/kiranshivaraju/fuzzjobs/internal/api"
	"github.com/kiranshivaraju/fuzzjobs/internal/api/handler"
	mw "github.com/kiranshivaraju/fuzzjobs/internal/api/middleware"
	"github.com/kiranshivaraju/fuzzjobs/internal/api/response"
	"github.com/kiranshivaraju/fuzzjobs/internal/artifact"
	"github.com/kiranshivaraju/fuzzjobs/internal/cache"
	"github.com/kiranshivaraju/fuzzjobs/internal/config"
	"github.com/kiranshivaraju/fuzzjobs/internal/jobs"
	"github.com/kiranshivaraju/fuzzjobs/internal/notify"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
	"github.com/kiranshivaraju/fuzzjobs/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "dispatcher", cfg.Dispatch.Kind, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Artifact storage is optional; without it renderings stay in the database
	var artifacts artifact.Store
	if cfg.Artifacts.Enabled() {
		s3Store, err := artifact.NewS3Store(ctx, cfg.Artifacts)
		if err != nil {
			return fmt.Errorf("create artifact store: %w", err)
		}
		artifacts = s3Store
		slog.Info("artifact store configured", "bucket", cfg.Artifacts.Bucket)
	}

	// 6. Create store, notifier and outbox relay
	pgStore := store.NewPostgresStore(pool)

	notifier, err := newNotifier(cfg.Dispatch, redisCache.Client())
	if err != nil {
		return err
	}
	relay := notify.NewRelay(pgStore, notifier, notify.RelayConfig{
		PollInterval: cfg.Dispatch.OutboxPollInterval,
		BatchSize:    cfg.Dispatch.OutboxBatchSize,
		MaxAttempts:  cfg.Dispatch.MaxAttempts,
	}, slog.Default())

	// 7. Create job service
	svc := jobs.NewService(pgStore, redisCache, relay, artifacts, jobs.NewLogAlerter(slog.Default()), jobs.Config{
		CallbackBaseURL: cfg.Server.BaseURL,
		Debug:           cfg.Server.Debug(),
		StatusTTL:       cfg.Redis.StatusTTL,
	}, slog.Default())

	// 8. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, "jobs", cfg.RateLimit.JobsPerMinute),

		HealthHandler:  healthHandler(pgStore, redisCache),
		MetricsHandler: telemetry.Handler(),

		CreateJobHandler:    handler.NewCreateJobHandler(svc),
		JobStatusHandler:    handler.NewJobStatusHandler(svc),
		ResultsHandler:      handler.NewResultsHandler(pgStore),
		DownloadHandler:     handler.NewDownloadHandler(svc),
		WorkerInputHandler:  handler.NewWorkerInputHandler(svc),
		WorkerResultHandler: handler.NewWorkerResultHandler(svc),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server and outbox relay
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("outbox relay: %w", err)
		}
		return nil
	})

	// Wait for shutdown signal or a failed component
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newNotifier selects how workers are told about new jobs.
func newNotifier(cfg config.DispatchConfig, client *redis.Client) (notify.Notifier, error) {
	switch cfg.Kind {
	case "xmlrpc":
		return notify.NewXMLRPCNotifier(cfg.DaemonURL, cfg.Timeout), nil
	case "redis":
		return notify.NewRedisNotifier(client, cfg.Queue), nil
	default:
		return nil, fmt.Errorf("unknown dispatcher %q", cfg.Kind)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
