// Command api runs the fulfillment pipeline HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderflow_backend/internal/attachments"
	"orderflow_backend/internal/auth"
	"orderflow_backend/internal/email"
	apphttp "orderflow_backend/internal/http"
	"orderflow_backend/internal/notification"
	"orderflow_backend/internal/pipeline"
	pipelinerepo "orderflow_backend/internal/pipeline/repository"
	"orderflow_backend/internal/worklist"
	"orderflow_backend/migrations"
	"orderflow_backend/platform/config"
	"orderflow_backend/platform/db"
	"orderflow_backend/platform/events"
	"orderflow_backend/platform/logger"
	"orderflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	pool, err := withRetry(ctx, log, "database", func() (*pgxpool.Pool, error) {
		return db.NewPool(ctx, cfg)
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, cfg, migrations.FS, "."); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	bus := events.NewInMemoryBus(log)
	validate := validator.New()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Degrade: worklist counts fall back to direct queries.
			log.Warn("redis unreachable, worklist caching disabled", "error", err)
			rdb = nil
		}
	}

	pipelineModule := pipeline.NewModule(pool, bus, log, cfg, validate)
	authModule := auth.NewModule(pool, log, cfg, validate)
	worklistModule := worklist.NewModule(
		rdb,
		pipelinerepo.NewOrders(pool),
		pipelinerepo.NewDispatches(pool),
		bus, log, cfg,
	)

	modules := []apphttp.Module{authModule, pipelineModule, worklistModule}

	if cfg.IsMinIOEnabled() {
		storage, err := attachments.NewStorage(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		modules = append(modules, attachments.NewModule(
			attachments.NewRepository(pool), storage, pipelineModule.Service, log, cfg.GetMinIOMaxFileSize(),
		))
	} else {
		log.Info("object storage not configured, stage attachments disabled")
	}

	notification.NewService(email.NewSender(cfg, log), cfg.GetNotifyEmails(), log).Register(bus)

	app := apphttp.NewApp(cfg, log, modules)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// withRetry retries a startup dependency with a fixed backoff. Containers
// regularly come up before their database does.
func withRetry[T any](ctx context.Context, log *logger.Logger, name string, connect func() (T, error)) (T, error) {
	const attempts = 5
	const backoff = 3 * time.Second

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := connect()
		if err == nil {
			return v, nil
		}
		if attempt == attempts {
			return zero, err
		}
		log.Warn("startup dependency not ready, retrying", "dependency", name, "attempt", attempt, "error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
