package file

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

// ExecutionRepository handles execution record file operations.
type ExecutionRepository struct {
	dir string
	mu  sync.Mutex
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{dir: filepath.Join(root, "executions")}
}

func (er *ExecutionRepository) Create(_ context.Context, execution *models.WorkflowExecution) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	if err := writeRecord(er.dir, execution.ExecutionID, execution); err != nil {
		return persistence.NewExecutionError("Create", execution.ExecutionID, err)
	}

	return nil
}

func (er *ExecutionRepository) UpdateLogs(_ context.Context, executionID string, logs []models.LogEntry) error {
	return er.modify("UpdateLogs", executionID, func(execution *models.WorkflowExecution) {
		execution.Logs = logs
	})
}

func (er *ExecutionRepository) Finish(_ context.Context, executionID string, result models.ExecutionResult) error {
	return er.modify("Finish", executionID, func(execution *models.WorkflowExecution) {
		execution.Apply(result)
	})
}

// modify applies fn to a non-terminal execution and writes it back.
func (er *ExecutionRepository) modify(op, executionID string, fn func(*models.WorkflowExecution)) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := readRecord[models.WorkflowExecution](er.dir, executionID)
	if err != nil {
		return persistence.NewExecutionError(op, executionID, err)
	}

	if execution == nil {
		return persistence.NewExecutionError(op, executionID, persistence.ErrExecutionNotFound)
	}

	if execution.Status.IsTerminal() {
		return persistence.NewExecutionError(op, executionID, persistence.ErrExecutionFinalized)
	}

	fn(execution)

	if err := writeRecord(er.dir, executionID, execution); err != nil {
		return persistence.NewExecutionError(op, executionID, err)
	}

	return nil
}

func (er *ExecutionRepository) GetByID(_ context.Context, executionID string) (*models.WorkflowExecution, error) {
	execution, err := readRecord[models.WorkflowExecution](er.dir, executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", executionID, err)
	}

	return execution, nil
}

// ListByWorkflowSlug returns the newest executions of a workflow first.
func (er *ExecutionRepository) ListByWorkflowSlug(_ context.Context, slug string, limit int) ([]*models.WorkflowExecution, error) {
	all, err := readAllRecords[models.WorkflowExecution](er.dir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowExecution, 0)

	for _, execution := range all {
		if execution.WorkflowSlug == slug {
			executions = append(executions, execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit = persistence.NormalizeLimit(limit); len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}
