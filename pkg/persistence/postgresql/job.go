package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

// JobRepository stores scheduled jobs. Claims use SKIP LOCKED so concurrent
// workers never receive the same job.
type JobRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewJobRepository(db *sql.DB, logger *slog.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

const jobColumns = `
	job_id
  , workflow_id
  , workflow_slug
  , status
  , scheduled_for
  , input
  , retry_count
  , max_retries
  , last_error
  , last_execution_id
  , created_at
  , updated_at
`

func (r *JobRepository) Create(ctx context.Context, job *models.WorkflowJob) error {
	inputJSON, err := marshalJSON(job.Input)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		job.JobID,
		job.WorkflowID,
		job.WorkflowSlug,
		job.Status,
		job.ScheduledFor,
		inputJSON,
		job.RetryCount,
		job.MaxRetries,
		nullString(job.LastError),
		nullString(job.LastExecutionID),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.JobID, err)
	}

	return nil
}

func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowJob, error) {
	if limit <= 0 {
		limit = persistence.DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE workflow_jobs
		SET status = $1, updated_at = $2
		WHERE job_id IN (
			SELECT job_id FROM workflow_jobs
			WHERE status = $3 AND scheduled_for <= $2
			ORDER BY scheduled_for
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		models.JobStatusRunning, now, models.JobStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due jobs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING carries no ordering guarantee.
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].ScheduledFor.Before(jobs[j].ScheduledFor)
	})

	return jobs, nil
}

func (r *JobRepository) Update(ctx context.Context, job *models.WorkflowJob) error {
	inputJSON, err := marshalJSON(job.Input)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_jobs
		SET status = $2, scheduled_for = $3, input = $4, retry_count = $5, max_retries = $6,
			last_error = $7, last_execution_id = $8, updated_at = $9
		WHERE job_id = $1
	`,
		job.JobID,
		job.Status,
		job.ScheduledFor,
		inputJSON,
		job.RetryCount,
		job.MaxRetries,
		nullString(job.LastError),
		nullString(job.LastExecutionID),
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.JobID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrJobNotFound
	}

	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*models.WorkflowJob, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM workflow_jobs WHERE job_id = $1`, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}

	return job, nil
}

func (r *JobRepository) List(ctx context.Context, status models.JobStatus) ([]*models.WorkflowJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM workflow_jobs
		WHERE $1 = '' OR status = $1
		ORDER BY scheduled_for
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*models.WorkflowJob, error) {
	jobs := make([]*models.WorkflowJob, 0)

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

func scanJob(row scanner) (*models.WorkflowJob, error) {
	var (
		job                        models.WorkflowJob
		inputRaw                   []byte
		lastError, lastExecutionID sql.NullString
	)

	err := row.Scan(
		&job.JobID,
		&job.WorkflowID,
		&job.WorkflowSlug,
		&job.Status,
		&job.ScheduledFor,
		&inputRaw,
		&job.RetryCount,
		&job.MaxRetries,
		&lastError,
		&lastExecutionID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.LastError = lastError.String
	job.LastExecutionID = lastExecutionID.String

	if err := unmarshalJSON(inputRaw, &job.Input); err != nil {
		return nil, err
	}

	return &job, nil
}
