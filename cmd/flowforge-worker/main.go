package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowforge/pkg/cmd"
	"github.com/dukex/flowforge/pkg/log"
	"github.com/dukex/flowforge/pkg/workflow"
)

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringFlag{
			Name:    "job-store-url",
			Usage:   "redis:// URL for a shared job store; the database is used when empty",
			Sources: cli.EnvVars("JOB_STORE_URL"),
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "Maximum dispatched runs executing at once",
			Value:   workflow.DefaultDispatchConcurrency,
			Sources: cli.EnvVars("WORKER_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "How often the job store is polled for due jobs",
			Value:   workflow.DefaultJobPollInterval,
			Sources: cli.EnvVars("JOB_POLL_INTERVAL"),
		},
		&cli.IntFlag{
			Name:    "job-batch-size",
			Usage:   "Jobs claimed per poll",
			Value:   workflow.DefaultJobBatchSize,
			Sources: cli.EnvVars("JOB_BATCH_SIZE"),
		},
		&cli.DurationFlag{
			Name:    "retry-interval",
			Usage:   "Base delay of the linear job retry backoff",
			Value:   workflow.DefaultJobRetryInterval,
			Sources: cli.EnvVars("JOB_RETRY_INTERVAL"),
		},
		&cli.BoolFlag{
			Name:    "cron",
			Usage:   "Fire schedule trigger nodes of active workflows",
			Value:   true,
			Sources: cli.EnvVars("CRON_ENABLED"),
		},
		&cli.DurationFlag{
			Name:    "cron-sync-interval",
			Usage:   "How often schedule trigger nodes are reloaded",
			Value:   time.Minute,
			Sources: cli.EnvVars("CRON_SYNC_INTERVAL"),
		},
	}
	flags = append(flags, cmd.CommonFlags()...)
	flags = append(flags, cmd.EventBusFlags()...)

	command := &cli.Command{
		Name:                  "flowforge-worker",
		Usage:                 "Run dispatched, scheduled and cron triggered workflows",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowforge-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing flowforge worker")

			runtime, err := cmd.NewRuntime(ctx, logger, cmd.ConfigFromCommand(command, "flowforge-worker"))
			if err != nil {
				return err
			}

			defer func() {
				if err := runtime.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"),
				"flowforge-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			jobs, closeJobs, err := cmd.NewJobRepository(ctx, logger, command.String("job-store-url"), runtime.Persistence)
			if err != nil {
				return err
			}

			runtime.AddCloser(func(context.Context) error { return closeJobs() })

			worker := NewWorker(logger, runtime, eventBus, jobs, WorkerConfig{
				WorkerID:         workerID,
				Concurrency:      command.Int("concurrency"),
				PollInterval:     command.Duration("poll-interval"),
				BatchSize:        command.Int("job-batch-size"),
				RetryInterval:    command.Duration("retry-interval"),
				Cron:             command.Bool("cron"),
				CronSyncInterval: command.Duration("cron-sync-interval"),
			})

			return worker.Run(ctx)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		stop()
		panic(err)
	}
}
