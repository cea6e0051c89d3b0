package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/flowforge/pkg/cmd"
	"github.com/dukex/flowforge/pkg/eventbus"
	"github.com/dukex/flowforge/pkg/persistence"
	"github.com/dukex/flowforge/pkg/workflow"
)

// WorkerConfig tunes the three loops a worker runs.
type WorkerConfig struct {
	WorkerID         string
	Concurrency      int
	PollInterval     time.Duration
	BatchSize        int
	RetryInterval    time.Duration
	Cron             bool
	CronSyncInterval time.Duration
}

// Worker consumes dispatched trigger events, polls the job store and fires
// schedule trigger nodes.
type Worker struct {
	logger     *slog.Logger
	config     WorkerConfig
	runtime    *cmd.Runtime
	dispatcher *workflow.Dispatcher
	jobs       *workflow.JobQueue
	cron       *workflow.CronTrigger
}

func NewWorker(
	logger *slog.Logger,
	runtime *cmd.Runtime,
	eventBus eventbus.EventBus,
	jobs persistence.JobRepository,
	config WorkerConfig,
) *Worker {
	queue := workflow.NewJobQueue(logger, runtime.Workflows, jobs, runtime.Executor,
		workflow.WithBatchSize(config.BatchSize),
		workflow.WithPollInterval(config.PollInterval),
		workflow.WithRetryInterval(config.RetryInterval),
	)

	return &Worker{
		logger:  logger,
		config:  config,
		runtime: runtime,
		dispatcher: workflow.NewDispatcher(logger, runtime.Workflows, runtime.Executor, eventBus,
			runtime.Persistence.DeadLetterRepository(),
			workflow.WithConcurrency(config.Concurrency),
			workflow.WithWorkerID(config.WorkerID),
		),
		jobs: queue,
		cron: workflow.NewCronTrigger(logger, queue),
	}
}

// Run blocks until ctx is done, then waits for in-flight runs.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.dispatcher.Start(ctx); err != nil {
		return err
	}

	w.jobs.Start(ctx)

	var resync <-chan time.Time

	if w.config.Cron {
		if _, err := w.cron.Sync(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync cron triggers", "error", err)
		}

		w.cron.Start(ctx)

		if w.config.CronSyncInterval > 0 {
			ticker := time.NewTicker(w.config.CronSyncInterval)
			defer ticker.Stop()

			resync = ticker.C
		}
	}

	w.logger.InfoContext(ctx, "Worker started",
		"worker_id", w.config.WorkerID, "concurrency", w.config.Concurrency, "cron", w.config.Cron)

	for {
		select {
		case <-ctx.Done():
			w.shutdown(ctx)

			return nil
		case <-resync:
			if _, err := w.cron.Sync(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Failed to sync cron triggers", "error", err)
			}
		}
	}
}

func (w *Worker) shutdown(ctx context.Context) {
	w.logger.InfoContext(ctx, "Worker stopping", "worker_id", w.config.WorkerID)

	if w.config.Cron {
		w.cron.Stop()
	}

	w.jobs.Stop()
	w.dispatcher.Wait()

	w.logger.InfoContext(ctx, "Worker stopped", "worker_id", w.config.WorkerID)
}
