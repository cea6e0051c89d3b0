// Package redis provides a Redis-backed job store so several workers can
// share one queue without a relational database.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

const DefaultNamespace = "flowforge"

// JobRepository keeps every job as JSON in a hash and indexes pending jobs in
// a sorted set scored by scheduled time. A claim is a ZREM, so only the worker
// that removes the member runs the job.
type JobRepository struct {
	client    rd.UniversalClient
	namespace string
	logger    *slog.Logger
}

var _ persistence.JobRepository = (*JobRepository)(nil)

func NewJobRepository(client rd.UniversalClient, namespace string, logger *slog.Logger) *JobRepository {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &JobRepository{
		client:    client,
		namespace: namespace,
		logger:    logger.With("module", "redis_job_repository"),
	}
}

// NewJobRepositoryFromURL connects using a redis:// or rediss:// URL.
func NewJobRepositoryFromURL(ctx context.Context, url string, logger *slog.Logger) (*JobRepository, error) {
	opts, err := rd.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := rd.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewJobRepository(client, DefaultNamespace, logger), nil
}

func (jr *JobRepository) key(parts ...string) string {
	return jr.namespace + ":" + strings.Join(parts, ":")
}

func (jr *JobRepository) jobsKey() string    { return jr.key("jobs") }
func (jr *JobRepository) pendingKey() string { return jr.key("jobs", "pending") }

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (jr *JobRepository) Create(ctx context.Context, job *models.WorkflowJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.JobID, err)
	}

	_, err = jr.client.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, jr.jobsKey(), job.JobID, payload)

		if job.Status == models.JobStatusPending {
			pipe.ZAdd(ctx, jr.pendingKey(), rd.Z{Score: score(job.ScheduledFor), Member: job.JobID})
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.JobID, err)
	}

	return nil
}

// ClaimDue returns the jobs it claimed even alongside an error. A job whose
// ZREM succeeded but could not be marked running is put back in the pending
// index so another poll picks it up.
func (jr *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowJob, error) {
	limit = persistence.NormalizeLimit(limit)

	due, err := jr.client.ZRangeByScoreWithScores(ctx, jr.pendingKey(), &rd.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due jobs: %w", err)
	}

	claimed := make([]*models.WorkflowJob, 0, len(due))

	for _, entry := range due {
		id, _ := entry.Member.(string)

		removed, err := jr.client.ZRem(ctx, jr.pendingKey(), id).Result()
		if err != nil {
			return sortByScheduled(claimed), fmt.Errorf("failed to claim job %s: %w", id, err)
		}

		// Another worker won the race.
		if removed == 0 {
			continue
		}

		job, err := jr.markRunning(ctx, id, now)
		if err != nil {
			return sortByScheduled(claimed), errors.Join(err, jr.unclaim(ctx, entry))
		}

		if job != nil {
			claimed = append(claimed, job)
		}
	}

	return sortByScheduled(claimed), nil
}

func (jr *JobRepository) markRunning(ctx context.Context, id string, now time.Time) (*models.WorkflowJob, error) {
	job, err := jr.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if job == nil {
		jr.logger.WarnContext(ctx, "Pending index referenced a missing job", "job_id", id)

		return nil, nil
	}

	job.Status = models.JobStatusRunning
	job.UpdatedAt = now

	if err := jr.write(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}

func (jr *JobRepository) unclaim(ctx context.Context, entry rd.Z) error {
	if err := jr.client.ZAdd(context.WithoutCancel(ctx), jr.pendingKey(), entry).Err(); err != nil {
		return fmt.Errorf("failed to return job %v to the pending index: %w", entry.Member, err)
	}

	return nil
}

func sortByScheduled(jobs []*models.WorkflowJob) []*models.WorkflowJob {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].ScheduledFor.Before(jobs[j].ScheduledFor)
	})

	return jobs
}

func (jr *JobRepository) Update(ctx context.Context, job *models.WorkflowJob) error {
	exists, err := jr.client.HExists(ctx, jr.jobsKey(), job.JobID).Result()
	if err != nil {
		return fmt.Errorf("failed to check job %s: %w", job.JobID, err)
	}

	if !exists {
		return persistence.ErrJobNotFound
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.JobID, err)
	}

	_, err = jr.client.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, jr.jobsKey(), job.JobID, payload)

		if job.Status == models.JobStatusPending {
			pipe.ZAdd(ctx, jr.pendingKey(), rd.Z{Score: score(job.ScheduledFor), Member: job.JobID})
		} else {
			pipe.ZRem(ctx, jr.pendingKey(), job.JobID)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.JobID, err)
	}

	return nil
}

func (jr *JobRepository) GetByID(ctx context.Context, jobID string) (*models.WorkflowJob, error) {
	payload, err := jr.client.HGet(ctx, jr.jobsKey(), jobID).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}

	var job models.WorkflowJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	return &job, nil
}

func (jr *JobRepository) List(ctx context.Context, status models.JobStatus) ([]*models.WorkflowJob, error) {
	values, err := jr.client.HVals(ctx, jr.jobsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*models.WorkflowJob, 0, len(values))

	for _, value := range values {
		var job models.WorkflowJob
		if err := json.Unmarshal([]byte(value), &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job: %w", err)
		}

		if status == "" || job.Status == status {
			jobs = append(jobs, &job)
		}
	}

	return sortByScheduled(jobs), nil
}

// Close releases the underlying client.
func (jr *JobRepository) Close() error {
	return jr.client.Close()
}

func (jr *JobRepository) write(ctx context.Context, job *models.WorkflowJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.JobID, err)
	}

	if err := jr.client.HSet(ctx, jr.jobsKey(), job.JobID, payload).Err(); err != nil {
		return fmt.Errorf("failed to write job %s: %w", job.JobID, err)
	}

	return nil
}
