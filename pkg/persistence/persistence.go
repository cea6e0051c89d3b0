// Package persistence defines the storage contracts for workflow graphs,
// executions, scheduled jobs, dead letters and the document store.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/flowforge/pkg/documents"
	"github.com/dukex/flowforge/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	JobRepository() JobRepository
	DeadLetterRepository() DeadLetterRepository
	DocumentStore() documents.Store

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow graphs. Getters return nil, nil when
// nothing matches.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetActive(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetBySlug(ctx context.Context, slug string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records. Once an execution reaches a
// terminal status UpdateLogs and Finish return ErrExecutionFinalized.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	UpdateLogs(ctx context.Context, executionID string, logs []models.LogEntry) error
	Finish(ctx context.Context, executionID string, result models.ExecutionResult) error
	GetByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error)
	ListByWorkflowSlug(ctx context.Context, slug string, limit int) ([]*models.WorkflowExecution, error)
}

// JobRepository stores scheduled jobs.
type JobRepository interface {
	Create(ctx context.Context, job *models.WorkflowJob) error
	// ClaimDue moves up to limit pending jobs due at now to running and returns
	// them ordered by scheduled time. A job is handed to exactly one caller.
	// On error the returned jobs are the ones already claimed; the caller owns them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowJob, error)
	Update(ctx context.Context, job *models.WorkflowJob) error
	GetByID(ctx context.Context, jobID string) (*models.WorkflowJob, error)
	// List returns jobs with the given status, or every job for an empty status.
	List(ctx context.Context, status models.JobStatus) ([]*models.WorkflowJob, error)
}

type DeadLetterRepository interface {
	Save(ctx context.Context, letter *models.DeadLetter) error
	// List returns the most recent dead letters first.
	List(ctx context.Context, limit int) ([]*models.DeadLetter, error)
}

// DefaultListLimit caps listings when callers pass a non-positive limit.
const DefaultListLimit = 50

// NormalizeLimit applies DefaultListLimit to non-positive limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}

	return limit
}
