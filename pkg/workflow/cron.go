package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dukex/flowforge/pkg/models"
)

// CronTrigger schedules jobs for workflows whose schedule_trigger nodes carry
// a standard 5-field "cron" expression. Each tick goes through the JobQueue so
// scheduled runs get the same retry handling as any other job.
type CronTrigger struct {
	logger  *slog.Logger
	queue   *JobQueue
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	ctx     context.Context
}

// cronLogger routes robfig/cron's own logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

func NewCronTrigger(logger *slog.Logger, queue *JobQueue) *CronTrigger {
	logger = logger.With("module", "cron_trigger")
	cronLog := cronLogger{logger: logger}

	return &CronTrigger{
		logger: logger,
		queue:  queue,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLog),
				cron.Recover(cronLog),
			),
		),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

// Sync replaces every registered entry with the schedules of the currently
// active workflows. It returns the number of entries registered.
func (c *CronTrigger) Sync(ctx context.Context) (int, error) {
	workflows, err := c.queue.workflows.GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active workflows: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, id := range c.entries {
		c.cron.Remove(id)
		delete(c.entries, key)
	}

	for _, workflow := range workflows {
		for _, node := range workflow.TriggerNodes() {
			if node.Kind() != models.NodeKindScheduleTrigger {
				continue
			}

			expr, _ := node.Configuration()["cron"].(string)
			if expr == "" {
				continue
			}

			if err := c.add(workflow.Slug, node, expr); err != nil {
				c.logger.WarnContext(ctx, "Skipping invalid schedule",
					"workflow_slug", workflow.Slug, "node_id", node.ID, "cron", expr, "error", err)
			}
		}
	}

	c.logger.InfoContext(ctx, "Cron schedules synced", "entries", len(c.entries))

	return len(c.entries), nil
}

func (c *CronTrigger) add(slug string, node *models.Node, expr string) error {
	input, _ := node.Configuration()["input"].(map[string]any)

	id, err := c.cron.AddFunc(expr, func() {
		c.fire(slug, node.ID, input)
	})
	if err != nil {
		return err
	}

	c.entries[slug+"/"+node.ID] = id

	return nil
}

func (c *CronTrigger) fire(slug, nodeID string, input map[string]any) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	job, err := c.queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: slug, Input: input})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to schedule cron run",
			"workflow_slug", slug, "node_id", nodeID, "error", err)

		return
	}

	c.logger.InfoContext(ctx, "Cron run scheduled", "workflow_slug", slug, "job_id", job.JobID)
}

// Start begins firing registered schedules. ctx is used for the jobs they create.
func (c *CronTrigger) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	c.cron.Start()
}

// Stop halts the scheduler and waits for running ticks.
func (c *CronTrigger) Stop() {
	<-c.cron.Stop().Done()
}

// Entries reports the registered schedule keys ("slug/nodeID").
func (c *CronTrigger) Entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}

	return keys
}
