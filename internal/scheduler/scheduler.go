// Package scheduler runs background jobs over asynq: the periodic
// worklist refresh that backs the pending-work aggregator's polling leg.
package scheduler

import (
	"context"
	"fmt"

	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/internal/worklist"
	"orderflow_backend/platform/config"
	"orderflow_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskWorklistRefresh recomputes the unrestricted worklist view.
const TaskWorklistRefresh = "worklist:refresh"

// RedisOpt builds the asynq connection options from the redis URL.
func RedisOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	parsed, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("invalid redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:     parsed.Addr,
		Username: parsed.Username,
		Password: parsed.Password,
		DB:       parsed.DB,
	}, nil
}

// Worker processes background tasks.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	worklist *worklist.Service
	log      *logger.Logger
}

// NewWorker creates the task worker.
func NewWorker(opt asynq.RedisClientOpt, queue string, wl *worklist.Service, log *logger.Logger) *Worker {
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error("task failed", "type", task.Type(), "error", err)
		}),
	})

	w := &Worker{server: server, mux: asynq.NewServeMux(), worklist: wl, log: log}
	w.mux.HandleFunc(TaskWorklistRefresh, w.handleWorklistRefresh)
	return w
}

// Run starts processing tasks and blocks until Shutdown.
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

// Shutdown stops the worker gracefully.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// handleWorklistRefresh keeps the unrestricted scope's counts warm. Other
// scopes are repopulated on demand; recomputing every firm combination on
// a timer would be wasted work.
func (w *Worker) handleWorklistRefresh(ctx context.Context, _ *asynq.Task) error {
	scope := domain.ScopeFor(domain.Actor{Role: domain.RoleMaster})
	if err := w.worklist.Refresh(ctx, scope); err != nil {
		return fmt.Errorf("worklist refresh: %w", err)
	}
	w.log.Debug("worklist refreshed")
	return nil
}

// Periodic schedules the recurring tasks and blocks until Shutdown.
type Periodic struct {
	scheduler *asynq.Scheduler
}

// NewPeriodic creates the periodic task scheduler.
func NewPeriodic(opt asynq.RedisClientOpt, queue string, cfg config.WorklistConfig, log *logger.Logger) (*Periodic, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Error("failed to enqueue periodic task", "error", err)
			}
		},
	})

	spec := fmt.Sprintf("@every %s", cfg.GetWorklistRefreshInterval())
	task := asynq.NewTask(TaskWorklistRefresh, nil)
	if _, err := scheduler.Register(spec, task, asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register %s: %w", TaskWorklistRefresh, err)
	}

	return &Periodic{scheduler: scheduler}, nil
}

// Run starts the scheduler and blocks until Shutdown.
func (p *Periodic) Run() error {
	return p.scheduler.Run()
}

// Shutdown stops the scheduler gracefully.
func (p *Periodic) Shutdown() {
	p.scheduler.Shutdown()
}
