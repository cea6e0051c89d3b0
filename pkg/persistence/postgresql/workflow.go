package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , slug
  , name
  , description
  , status
  , version
  , created_at
  , updated_at
`

// GetAll returns all workflows from the database.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE deleted_at IS NULL ORDER BY created_at`)
}

func (r *WorkflowRepository) GetActive(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE deleted_at IS NULL AND status = $1 ORDER BY created_at`,
		models.WorkflowStatusActive)
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	return r.queryOne(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *WorkflowRepository) GetBySlug(ctx context.Context, slug string) (*models.Workflow, error) {
	return r.queryOne(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE slug = $1 AND deleted_at IS NULL`, slug)
}

func (r *WorkflowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadCanvas(ctx, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) queryOne(ctx context.Context, query string, arg string) (*models.Workflow, error) {
	workflow, err := scanWorkflowBase(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadCanvas(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func scanWorkflowBase(row scanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID,
		&workflow.Slug,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workflow.Version,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

// loadCanvas reads nodes and edges in declaration order.
func (r *WorkflowRepository) loadCanvas(ctx context.Context, workflow *models.Workflow) error {
	nodeRows, err := r.db.QueryContext(ctx, `
		SELECT id, node_type, name, config, data, continue_on_error
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY sort_order
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, nodeRows)

	workflow.Canvas.Nodes = make([]*models.Node, 0)

	for nodeRows.Next() {
		var (
			node               models.Node
			configRaw, dataRaw []byte
		)

		if err := nodeRows.Scan(&node.ID, &node.Type, &node.Name, &configRaw, &dataRaw, &node.ContinueOnError); err != nil {
			return fmt.Errorf("failed to scan workflow node: %w", err)
		}

		if err := unmarshalJSON(configRaw, &node.Config); err != nil {
			return err
		}

		if err := unmarshalJSON(dataRaw, &node.Data); err != nil {
			return err
		}

		workflow.Canvas.Nodes = append(workflow.Canvas.Nodes, &node)
	}

	if err := nodeRows.Err(); err != nil {
		return fmt.Errorf("error iterating workflow nodes: %w", err)
	}

	edgeRows, err := r.db.QueryContext(ctx, `
		SELECT id, source, target
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY sort_order
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow edges: %w", err)
	}

	defer closeRows(ctx, r.logger, edgeRows)

	workflow.Canvas.Edges = make([]*models.Edge, 0)

	for edgeRows.Next() {
		var edge models.Edge
		if err := edgeRows.Scan(&edge.ID, &edge.Source, &edge.Target); err != nil {
			return fmt.Errorf("failed to scan workflow edge: %w", err)
		}

		workflow.Canvas.Edges = append(workflow.Canvas.Edges, &edge)
	}

	if err := edgeRows.Err(); err != nil {
		return fmt.Errorf("error iterating workflow edges: %w", err)
	}

	return nil
}

// Save saves a workflow to the database, bumping its version on update.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) (err error) {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO workflows (id, slug, name, description, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			version = workflows.version + 1,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
		RETURNING version, created_at
	`,
		workflow.ID,
		workflow.Slug,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	).Scan(&workflow.Version, &workflow.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrWorkflowAlreadyExists)
		}

		return fmt.Errorf("failed to save workflow base: %w", err)
	}

	// Replace the canvas wholesale on every save.
	if _, err = tx.ExecContext(ctx, "DELETE FROM workflow_edges WHERE workflow_id = $1", workflow.ID); err != nil {
		return fmt.Errorf("failed to delete existing edges: %w", err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflow.ID); err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	if err = saveCanvas(ctx, tx, workflow); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func saveCanvas(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	for position, node := range workflow.Canvas.Nodes {
		configJSON, err := marshalJSON(node.Config)
		if err != nil {
			return err
		}

		dataJSON, err := marshalJSON(node.Data)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, sort_order, node_type, name, config, data, continue_on_error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, workflow.ID, node.ID, position, node.Type, node.Name, configJSON, dataJSON, node.ContinueOnError)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	for position, edge := range workflow.Canvas.Edges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_edges (workflow_id, sort_order, id, source, target)
			VALUES ($1, $2, $3, $4, $5)
		`, workflow.ID, position, edge.ID, edge.Source, edge.Target)
		if err != nil {
			return fmt.Errorf("failed to save edge %s->%s: %w", edge.Source, edge.Target, err)
		}
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}
