package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestQueue(t *testing.T, env *testEnv, clock *fakeClock, opts ...JobQueueOption) *JobQueue {
	t.Helper()

	opts = append([]JobQueueOption{WithClock(clock.Now), WithRetryInterval(time.Minute)}, opts...)

	return NewJobQueue(slog.Default(), env.workflows, env.store.JobRepository(), env.executor, opts...)
}

func TestJobQueue_Schedule(t *testing.T) {
	env := newTestEnv(t)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	queue := newTestQueue(t, env, clock)
	ctx := context.Background()

	env.saveWorkflow(t, graph("report", []*models.Node{node("build", "echo", nil)}))

	paused := graph("paused", []*models.Node{node("build", "echo", nil)})
	paused.Status = models.WorkflowStatusPaused
	env.saveWorkflow(t, paused)

	t.Run("defaults", func(t *testing.T) {
		job, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "report"})
		require.NoError(t, err)

		assert.Equal(t, models.JobStatusPending, job.Status)
		assert.Equal(t, models.DefaultMaxRetries, job.MaxRetries)
		assert.Equal(t, clock.Now(), job.ScheduledFor)
		assert.Equal(t, "wf-report", job.WorkflowID)

		stored, err := env.store.JobRepository().GetByID(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, job.JobID, stored.JobID)
	})

	t.Run("explicit retries and time", func(t *testing.T) {
		retries := 0
		at := clock.Now().Add(time.Hour)

		job, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "report", ScheduledFor: at, MaxRetries: &retries})
		require.NoError(t, err)

		assert.Equal(t, 0, job.MaxRetries)
		assert.Equal(t, at, job.ScheduledFor)
	})

	t.Run("unknown workflow", func(t *testing.T) {
		_, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "missing"})
		require.ErrorIs(t, err, ErrWorkflowNotFound)
	})

	t.Run("inactive workflow", func(t *testing.T) {
		_, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "paused"})
		require.ErrorIs(t, err, ErrWorkflowInactive)
	})
}

func TestJobQueue_ProcessPending_Completes(t *testing.T) {
	env := newTestEnv(t)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	queue := newTestQueue(t, env, clock)
	ctx := context.Background()

	env.saveWorkflow(t, graph("report", []*models.Node{node("build", "echo", map[string]any{"for": "{{input.team}}"})}))

	later, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "report", ScheduledFor: clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	now, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "report", Input: map[string]any{"team": "core"}})
	require.NoError(t, err)

	processed, err := queue.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	done, err := env.store.JobRepository().GetByID(ctx, now.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	require.NotEmpty(t, done.LastExecutionID)

	execution, err := env.store.ExecutionRepository().GetByID(ctx, done.LastExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerSourceSchedule, execution.Trigger)
	assert.Equal(t, map[string]any{"for": "core"}, execution.Output["build"])

	waiting, err := env.store.JobRepository().GetByID(ctx, later.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, waiting.Status)
}

func TestJobQueue_ProcessPending_RetriesWithLinearBackoff(t *testing.T) {
	env := newTestEnv(t)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	queue := newTestQueue(t, env, clock)
	ctx := context.Background()

	env.saveWorkflow(t, graph("flaky", []*models.Node{node("call", "fail", map[string]any{"message": "upstream down"})}))

	retries := 2
	job, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "flaky", MaxRetries: &retries})
	require.NoError(t, err)

	expectations := []struct {
		status       models.JobStatus
		retryCount   int
		scheduledFor time.Time
	}{
		{status: models.JobStatusPending, retryCount: 1, scheduledFor: start.Add(1 * time.Minute)},
		{status: models.JobStatusPending, retryCount: 2, scheduledFor: start.Add(1*time.Minute + 2*time.Minute)},
		{status: models.JobStatusFailed, retryCount: 2},
	}

	for i, want := range expectations {
		processed, err := queue.ProcessPending(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, processed, "attempt %d", i+1)

		stored, err := env.store.JobRepository().GetByID(ctx, job.JobID)
		require.NoError(t, err)

		assert.Equal(t, want.status, stored.Status, "attempt %d", i+1)
		assert.Equal(t, want.retryCount, stored.RetryCount, "attempt %d", i+1)
		assert.Contains(t, stored.LastError, "upstream down")

		if want.status == models.JobStatusPending {
			assert.WithinDuration(t, want.scheduledFor, stored.ScheduledFor, 0, "attempt %d", i+1)

			// Not due until the backoff elapses.
			processed, err = queue.ProcessPending(ctx)
			require.NoError(t, err)
			assert.Zero(t, processed)

			clock.Advance(stored.ScheduledFor.Sub(clock.Now()))
		}
	}

	processed, err := queue.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestJobQueue_StartStop(t *testing.T) {
	env := newTestEnv(t)
	clock := &fakeClock{now: time.Now().UTC()}
	queue := newTestQueue(t, env, clock, WithPollInterval(10*time.Millisecond))
	ctx := context.Background()

	env.saveWorkflow(t, graph("tick", []*models.Node{node("build", "echo", nil)}))

	job, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "tick"})
	require.NoError(t, err)

	queue.Start(ctx)
	defer queue.Stop()

	require.Eventually(t, func() bool {
		stored, err := env.store.JobRepository().GetByID(ctx, job.JobID)

		return err == nil && stored != nil && stored.Status == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	queue.Stop()
	queue.Stop()
}

func TestJobQueue_StopReleasesInterruptedJob(t *testing.T) {
	env := newTestEnv(t)
	clock := &fakeClock{now: time.Now().UTC()}
	queue := newTestQueue(t, env, clock, WithPollInterval(10*time.Millisecond))
	ctx := context.Background()

	env.saveWorkflow(t, graph("long", []*models.Node{node("wait", "block", nil)}))

	noRetries := 0
	job, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "long", MaxRetries: &noRetries})
	require.NoError(t, err)

	queue.Start(ctx)

	require.Eventually(t, func() bool {
		stored, err := env.store.JobRepository().GetByID(ctx, job.JobID)

		return err == nil && stored != nil && stored.Status == models.JobStatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	queue.Stop()

	stored, err := env.store.JobRepository().GetByID(ctx, job.JobID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPending, stored.Status)
	assert.Zero(t, stored.RetryCount)
	assert.Empty(t, stored.LastError)
	assert.WithinDuration(t, job.ScheduledFor, stored.ScheduledFor, 0)
	assert.NotEmpty(t, stored.LastExecutionID)

	execution, err := env.store.ExecutionRepository().GetByID(ctx, stored.LastExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
}

func TestJobQueue_ProcessPending_CancelledContextReleasesBatch(t *testing.T) {
	env := newTestEnv(t)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	queue := newTestQueue(t, env, clock)

	env.saveWorkflow(t, graph("report", []*models.Node{node("build", "echo", nil)}))

	first, err := queue.Schedule(context.Background(), ScheduleRequest{WorkflowSlug: "report"})
	require.NoError(t, err)

	second, err := queue.Schedule(context.Background(), ScheduleRequest{WorkflowSlug: "report"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processed, err := queue.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	for _, job := range []*models.WorkflowJob{first, second} {
		stored, err := env.store.JobRepository().GetByID(context.Background(), job.JobID)
		require.NoError(t, err)

		assert.Equal(t, models.JobStatusPending, stored.Status)
		assert.Zero(t, stored.RetryCount)
		assert.Empty(t, stored.LastExecutionID)
	}

	processed, err = queue.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
}

// partialClaimRepository claims normally but reports an error afterwards,
// like a store that lost its connection midway through a batch.
type partialClaimRepository struct {
	persistence.JobRepository
}

func (r *partialClaimRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowJob, error) {
	claimed, err := r.JobRepository.ClaimDue(ctx, now, limit)
	if err != nil {
		return claimed, err
	}

	return claimed, errors.New("connection reset")
}

func TestJobQueue_ProcessPending_RunsPartialClaim(t *testing.T) {
	env := newTestEnv(t)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	jobs := &partialClaimRepository{JobRepository: env.store.JobRepository()}
	queue := NewJobQueue(slog.Default(), env.workflows, jobs, env.executor, WithClock(clock.Now))
	ctx := context.Background()

	env.saveWorkflow(t, graph("report", []*models.Node{node("build", "echo", nil)}))

	job, err := queue.Schedule(ctx, ScheduleRequest{WorkflowSlug: "report"})
	require.NoError(t, err)

	processed, err := queue.ProcessPending(ctx)
	require.ErrorContains(t, err, "connection reset")
	assert.Equal(t, 1, processed)

	stored, err := env.store.JobRepository().GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
}
