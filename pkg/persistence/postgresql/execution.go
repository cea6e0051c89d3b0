package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

// ExecutionRepository stores execution records.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	execution_id
  , workflow_id
  , workflow_slug
  , trigger_source
  , status
  , started_at
  , completed_at
  , duration_ms
  , input
  , output
  , error
  , logs
`

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	inputJSON, err := marshalJSON(execution.Input)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ExecutionID, err)
	}

	logs := execution.Logs
	if logs == nil {
		logs = []models.LogEntry{}
	}

	logsJSON, err := marshalJSON(logs)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ExecutionID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, workflow_id, workflow_slug, trigger_source, status, started_at, input, logs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		execution.ExecutionID,
		execution.WorkflowID,
		execution.WorkflowSlug,
		execution.Trigger,
		execution.Status,
		execution.StartedAt,
		inputJSON,
		logsJSON,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ExecutionID, err)
	}

	return nil
}

// UpdateLogs replaces the log list of a running execution.
func (r *ExecutionRepository) UpdateLogs(ctx context.Context, executionID string, logs []models.LogEntry) error {
	logsJSON, err := marshalJSON(logs)
	if err != nil {
		return persistence.NewExecutionError("UpdateLogs", executionID, err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE executions SET logs = $2 WHERE execution_id = $1 AND status = $3`,
		executionID, logsJSON, models.ExecutionStatusRunning)
	if err != nil {
		return persistence.NewExecutionError("UpdateLogs", executionID, err)
	}

	return r.checkModified(ctx, "UpdateLogs", executionID, result)
}

// Finish records the terminal state. The status guard in the WHERE clause
// makes the first Finish win.
func (r *ExecutionRepository) Finish(ctx context.Context, executionID string, res models.ExecutionResult) error {
	outputJSON, err := marshalJSON(res.Output)
	if err != nil {
		return persistence.NewExecutionError("Finish", executionID, err)
	}

	logs := res.Logs
	if logs == nil {
		logs = []models.LogEntry{}
	}

	logsJSON, err := marshalJSON(logs)
	if err != nil {
		return persistence.NewExecutionError("Finish", executionID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $2, completed_at = $3, duration_ms = $4, output = $5, error = $6, logs = $7
		WHERE execution_id = $1 AND status = $8
	`,
		executionID,
		res.Status,
		res.CompletedAt,
		res.DurationMs,
		outputJSON,
		nullString(res.Error),
		logsJSON,
		models.ExecutionStatusRunning,
	)
	if err != nil {
		return persistence.NewExecutionError("Finish", executionID, err)
	}

	return r.checkModified(ctx, "Finish", executionID, result)
}

func (r *ExecutionRepository) checkModified(ctx context.Context, op, executionID string, result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM executions WHERE execution_id = $1)`, executionID).Scan(&exists)
	if err != nil {
		return persistence.NewExecutionError(op, executionID, err)
	}

	if !exists {
		return persistence.NewExecutionError(op, executionID, persistence.ErrExecutionNotFound)
	}

	return persistence.NewExecutionError(op, executionID, persistence.ErrExecutionFinalized)
}

func (r *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	execution, err := scanExecution(r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE execution_id = $1`, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewExecutionError("GetByID", executionID, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflowSlug(ctx context.Context, slug string, limit int) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE workflow_slug = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, slug, persistence.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		execution                    models.WorkflowExecution
		completedAt                  sql.NullTime
		durationMs                   sql.NullInt64
		errorMessage                 sql.NullString
		inputRaw, outputRaw, logsRaw []byte
	)

	err := row.Scan(
		&execution.ExecutionID,
		&execution.WorkflowID,
		&execution.WorkflowSlug,
		&execution.Trigger,
		&execution.Status,
		&execution.StartedAt,
		&completedAt,
		&durationMs,
		&inputRaw,
		&outputRaw,
		&errorMessage,
		&logsRaw,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	if durationMs.Valid {
		execution.DurationMs = &durationMs.Int64
	}

	execution.Error = errorMessage.String

	if err := unmarshalJSON(inputRaw, &execution.Input); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(outputRaw, &execution.Output); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(logsRaw, &execution.Logs); err != nil {
		return nil, err
	}

	return &execution, nil
}
