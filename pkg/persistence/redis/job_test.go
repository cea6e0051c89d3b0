package redis_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
	"github.com/dukex/flowforge/pkg/persistence/redis"
)

func setupRedis(t *testing.T) (*redis.JobRepository, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	repo, err := redis.NewJobRepositoryFromURL(ctx, "redis://"+endpoint, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = repo.Close()
	})

	return repo, ctx
}

func pendingJob(id string, at time.Time) *models.WorkflowJob {
	return &models.WorkflowJob{
		JobID:        id,
		WorkflowID:   "wf-1",
		WorkflowSlug: "order-intake",
		Status:       models.JobStatusPending,
		ScheduledFor: at,
		MaxRetries:   models.DefaultMaxRetries,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func TestJobRepository_Lifecycle(t *testing.T) {
	repo, ctx := setupRedis(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Create(ctx, pendingJob("late", now.Add(-time.Second))))
	require.NoError(t, repo.Create(ctx, pendingJob("early", now.Add(-time.Minute))))
	require.NoError(t, repo.Create(ctx, pendingJob("future", now.Add(time.Hour))))

	claimed, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "early", claimed[0].JobID)
	assert.Equal(t, "late", claimed[1].JobID)
	assert.Equal(t, models.JobStatusRunning, claimed[0].Status)

	again, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	// A retry puts the job back in the pending index.
	job := claimed[0]
	require.True(t, job.RecordFailure(now, time.Minute, "boom"))
	require.NoError(t, repo.Update(ctx, job))

	retried, err := repo.ClaimDue(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, "early", retried[0].JobID)
	assert.Equal(t, 1, retried[0].RetryCount)

	retried[0].Status = models.JobStatusCompleted
	require.NoError(t, repo.Update(ctx, retried[0]))

	stored, err := repo.GetByID(ctx, "early")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Update(ctx, pendingJob("nope", now))
	require.ErrorIs(t, err, persistence.ErrJobNotFound)

	pending, err := repo.List(ctx, models.JobStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "future", pending[0].JobID)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestJobRepository_ClaimDueIsExclusive(t *testing.T) {
	repo, ctx := setupRedis(t)
	now := time.Now().UTC()

	for i := range 10 {
		require.NoError(t, repo.Create(ctx, pendingJob(string(rune('a'+i)), now.Add(-time.Duration(i)*time.Second))))
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		claimed = map[string]int{}
	)

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			jobs, err := repo.ClaimDue(ctx, now, 5)
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()

			for _, job := range jobs {
				claimed[job.JobID]++
			}
		}()
	}

	wg.Wait()

	// Losers of a race skip the job, so a final sweep collects the rest.
	rest, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)

	for _, job := range rest {
		claimed[job.JobID]++
	}

	assert.Len(t, claimed, 10)

	for id, count := range claimed {
		assert.Equal(t, 1, count, "job %s claimed more than once", id)
	}
}

func TestNewJobRepositoryFromURL_InvalidURL(t *testing.T) {
	_, err := redis.NewJobRepositoryFromURL(context.Background(), "http://nope", slog.Default())
	require.Error(t, err)
}
