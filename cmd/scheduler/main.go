// Command scheduler runs the background worker and periodic tasks: the
// worklist refresh that keeps pending-work counts warm.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pipelinerepo "orderflow_backend/internal/pipeline/repository"
	"orderflow_backend/internal/scheduler"
	"orderflow_backend/internal/worklist"
	"orderflow_backend/platform/config"
	"orderflow_backend/platform/db"
	"orderflow_backend/platform/logger"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.RedisURL == "" {
		fmt.Fprintln(os.Stderr, "REDIS_URL is required for the scheduler")
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
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	wl := worklist.NewService(
		rdb,
		pipelinerepo.NewOrders(pool),
		pipelinerepo.NewDispatches(pool),
		log,
		cfg.GetWorklistRefreshInterval(),
	)

	asynqOpt, err := scheduler.RedisOpt(cfg)
	if err != nil {
		return err
	}

	worker := scheduler.NewWorker(asynqOpt, cfg.AsynqQueueName, wl, log)
	periodic, err := scheduler.NewPeriodic(asynqOpt, cfg.AsynqQueueName, cfg, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(worker.Run)
	g.Go(periodic.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		periodic.Shutdown()
		worker.Shutdown()
		return nil
	})

	log.Info("scheduler running", "queue", cfg.AsynqQueueName, "refreshInterval", cfg.GetWorklistRefreshInterval().String())
	return g.Wait()
}
