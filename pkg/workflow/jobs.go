package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/otelhelper"
	"github.com/dukex/flowforge/pkg/persistence"
)

const (
	DefaultJobBatchSize     = 10
	DefaultJobPollInterval  = 30 * time.Second
	DefaultJobRetryInterval = time.Minute
)

// ScheduleRequest defers a run of WorkflowSlug. A zero ScheduledFor means now
// and a nil MaxRetries means models.DefaultMaxRetries.
type ScheduleRequest struct {
	WorkflowSlug string         `json:"workflow_slug"`
	Input        map[string]any `json:"input"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	MaxRetries   *int           `json:"max_retries,omitempty"`
}

// JobQueue runs deferred workflow executions and retries failed ones with a
// linear backoff.
type JobQueue struct {
	logger        *slog.Logger
	workflows     *Repository
	jobs          persistence.JobRepository
	executor      *Executor
	batchSize     int
	pollInterval  time.Duration
	retryInterval time.Duration
	now           func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type JobQueueOption func(*JobQueue)

func WithBatchSize(size int) JobQueueOption {
	return func(q *JobQueue) {
		if size > 0 {
			q.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) JobQueueOption {
	return func(q *JobQueue) {
		if interval > 0 {
			q.pollInterval = interval
		}
	}
}

func WithRetryInterval(interval time.Duration) JobQueueOption {
	return func(q *JobQueue) {
		if interval > 0 {
			q.retryInterval = interval
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) JobQueueOption {
	return func(q *JobQueue) {
		q.now = now
	}
}

func NewJobQueue(
	logger *slog.Logger,
	workflows *Repository,
	jobs persistence.JobRepository,
	executor *Executor,
	opts ...JobQueueOption,
) *JobQueue {
	queue := &JobQueue{
		logger:        logger.With("module", "job_queue"),
		workflows:     workflows,
		jobs:          jobs,
		executor:      executor,
		batchSize:     DefaultJobBatchSize,
		pollInterval:  DefaultJobPollInterval,
		retryInterval: DefaultJobRetryInterval,
		now:           func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(queue)
	}

	return queue
}

// Schedule stores a pending job for an active workflow.
func (q *JobQueue) Schedule(ctx context.Context, req ScheduleRequest) (*models.WorkflowJob, error) {
	workflow, err := q.workflows.GetBySlug(ctx, req.WorkflowSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", req.WorkflowSlug, err)
	}

	if workflow == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, req.WorkflowSlug)
	}

	if !workflow.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInactive, req.WorkflowSlug)
	}

	now := q.now()

	maxRetries := models.DefaultMaxRetries
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		maxRetries = *req.MaxRetries
	}

	scheduledFor := req.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = now
	}

	job := &models.WorkflowJob{
		JobID:        "job-" + uuid.NewString(),
		WorkflowID:   workflow.ID,
		WorkflowSlug: workflow.Slug,
		Status:       models.JobStatusPending,
		ScheduledFor: scheduledFor.UTC(),
		Input:        req.Input,
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	q.logger.InfoContext(ctx, "Job scheduled",
		"job_id", job.JobID, "workflow_slug", job.WorkflowSlug, "scheduled_for", job.ScheduledFor)

	return job, nil
}

// ProcessPending claims one batch of due jobs and runs them in scheduled
// order. It returns the number of jobs claimed. Jobs a store managed to claim
// before failing are still run, so they never stay stuck as running. When ctx
// ends mid-batch the jobs not yet started go back to pending.
func (q *JobQueue) ProcessPending(ctx context.Context) (int, error) {
	claimed, claimErr := q.jobs.ClaimDue(ctx, q.now(), q.batchSize)
	if claimErr != nil {
		claimErr = fmt.Errorf("failed to claim due jobs: %w", claimErr)
	}

	for index, job := range claimed {
		if ctx.Err() != nil {
			q.release(ctx, claimed[index:])

			break
		}

		q.runJob(ctx, job)
	}

	if len(claimed) > 0 {
		q.logger.InfoContext(ctx, "Processed pending jobs", "count", len(claimed))
	}

	return len(claimed), claimErr
}

func (q *JobQueue) runJob(ctx context.Context, job *models.WorkflowJob) {
	logger := q.logger.With("job_id", job.JobID, "workflow_slug", job.WorkflowSlug)

	ctx, span := otelhelper.StartSpan(ctx, q.executor.tracer, "job.run",
		attribute.String(otelhelper.JobIDKey, job.JobID),
		attribute.String(otelhelper.WorkflowSlugKey, job.WorkflowSlug),
	)
	defer span.End()

	result, err := q.executor.Execute(ctx, ExecuteRequest{
		WorkflowID:   job.WorkflowID,
		WorkflowSlug: job.WorkflowSlug,
		Trigger:      models.TriggerSourceSchedule,
		Input:        job.Input,
	})

	now := q.now()

	if result != nil {
		job.LastExecutionID = result.ExecutionID
	}

	switch {
	case err == nil && result.Success:
		job.Status = models.JobStatusCompleted
		job.UpdatedAt = now

		logger.InfoContext(ctx, "Job completed", "execution_id", result.ExecutionID)
	case ctx.Err() != nil || (result != nil && result.Status == models.ExecutionStatusCancelled):
		// Interrupted by shutdown: the job did not fail, it runs again on the next poll.
		job.Release(now)
		logger.WarnContext(ctx, "Job interrupted, released", "retry_count", job.RetryCount)
	case err != nil:
		otelhelper.SetError(span, err)
		q.recordFailure(job, now, err.Error(), logger)
	default:
		q.recordFailure(job, now, result.Error, logger)
	}

	if err := q.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.ErrorContext(ctx, "Failed to update job", "error", err)
	}
}

func (q *JobQueue) release(ctx context.Context, jobs []*models.WorkflowJob) {
	now := q.now()

	for _, job := range jobs {
		job.Release(now)

		if err := q.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
			q.logger.ErrorContext(ctx, "Failed to release job", "job_id", job.JobID, "error", err)
		}
	}

	q.logger.InfoContext(ctx, "Released unstarted jobs", "count", len(jobs))
}

func (q *JobQueue) recordFailure(job *models.WorkflowJob, now time.Time, message string, logger *slog.Logger) {
	if job.RecordFailure(now, q.retryInterval, message) {
		logger.Warn("Job failed, rescheduled",
			"retry_count", job.RetryCount, "scheduled_for", job.ScheduledFor, "error", message)

		return
	}

	logger.Error("Job failed permanently", "retry_count", job.RetryCount, "error", message)
}

// Start polls for due jobs every poll interval until Stop or ctx ends.
func (q *JobQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		return
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})

	go q.poll(ctx, q.done)

	q.logger.InfoContext(ctx, "Job queue started", "poll_interval", q.pollInterval, "batch_size", q.batchSize)
}

// Stop ends polling and waits for the batch in flight.
func (q *JobQueue) Stop() {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	q.logger.Info("Job queue stopped")
}

func (q *JobQueue) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := q.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			q.logger.ErrorContext(ctx, "Failed to process pending jobs", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
