package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	dir string
	mu  sync.Mutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{dir: filepath.Join(root, "workflows")}
}

// GetAll returns every workflow ordered by creation time.
func (wr *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	workflows, err := readAllRecords[models.Workflow](wr.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (wr *WorkflowRepository) GetActive(ctx context.Context) ([]*models.Workflow, error) {
	all, err := wr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if workflow.IsActive() {
			active = append(active, workflow)
		}
	}

	return active, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := readRecord[models.Workflow](wr.dir, workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, err)
	}

	return workflow, nil
}

func (wr *WorkflowRepository) GetBySlug(ctx context.Context, slug string) (*models.Workflow, error) {
	all, err := wr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, workflow := range all {
		if workflow.Slug == slug {
			return workflow, nil
		}
	}

	return nil, nil
}

// Save stores workflow, stamping timestamps and bumping its version. Slugs are unique.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	existing, err := wr.GetBySlug(ctx, workflow.Slug)
	if err != nil {
		return err
	}

	if existing != nil && existing.ID != workflow.ID {
		return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrWorkflowAlreadyExists)
	}

	current, err := wr.GetByID(ctx, workflow.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	workflow.Version = 1
	if current != nil {
		workflow.Version = current.Version + 1
	}

	if err := writeRecord(wr.dir, workflow.ID, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	err := os.Remove(filepath.Join(wr.dir, id+".json"))
	if err != nil && os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}
