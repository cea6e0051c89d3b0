package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
	"github.com/dukex/flowforge/pkg/workflow"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// NewValidator returns the validator used for workflow documents and API requests.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

type Workflow struct {
	persistence persistence.Persistence
	cache       *workflow.Repository
	validate    *validator.Validate
}

// NewWorkflow creates the workflow service. cache may be nil; when set, it is
// invalidated on every change so executors never run a stale graph for long.
func NewWorkflow(persistence persistence.Persistence, cache *workflow.Repository) *Workflow {
	return &Workflow{
		persistence: persistence,
		cache:       cache,
		validate:    NewValidator(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns every workflow, or only those with status when it is set.
func (w *Workflow) List(ctx context.Context, status models.WorkflowStatus) ([]*models.Workflow, error) {
	if status != "" && !status.IsValid() {
		return nil, NewValidationError("List", "INVALID_STATUS",
			fmt.Sprintf("invalid workflow status '%s'", status), ErrInvalidRequest)
	}

	all, err := w.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	if status == "" {
		return all, nil
	}

	filtered := make([]*models.Workflow, 0, len(all))

	for _, wf := range all {
		if wf.Status == status {
			filtered = append(filtered, wf)
		}
	}

	return filtered, nil
}

// FetchBySlug retrieves a workflow by its slug.
func (w *Workflow) FetchBySlug(ctx context.Context, slug string) (*models.Workflow, error) {
	wf, err := w.persistence.WorkflowRepository().GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", slug, err)
	}

	if wf == nil {
		return nil, ErrWorkflowNotFound
	}

	return wf, nil
}

// Create stores a new workflow. Status defaults to active.
func (w *Workflow) Create(ctx context.Context, wf *models.Workflow) (*models.Workflow, error) {
	if wf == nil {
		return nil, ErrWorkflowNil
	}

	if wf.Status == "" {
		wf.Status = models.WorkflowStatusActive
	}

	if err := w.Validate(wf); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	wf.ID = uuid.NewString()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := w.save(ctx, "Create", wf); err != nil {
		return nil, err
	}

	return wf, nil
}

// Update replaces the workflow stored under slug. The body may rename the slug.
func (w *Workflow) Update(ctx context.Context, slug string, wf *models.Workflow) (*models.Workflow, error) {
	if wf == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.FetchBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if wf.Slug == "" {
		wf.Slug = existing.Slug
	}

	if wf.Status == "" {
		wf.Status = existing.Status
	}

	if err := w.Validate(wf); err != nil {
		return nil, err
	}

	wf.ID = existing.ID
	wf.CreatedAt = existing.CreatedAt
	wf.UpdatedAt = time.Now().UTC()

	if err := w.save(ctx, "Update", wf); err != nil {
		return nil, err
	}

	w.invalidate(existing.Slug)

	return wf, nil
}

// Import creates the workflow, or updates the one already using its slug.
func (w *Workflow) Import(ctx context.Context, wf *models.Workflow) (*models.Workflow, error) {
	if wf == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetBySlug(ctx, wf.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", wf.Slug, err)
	}

	if existing == nil {
		return w.Create(ctx, wf)
	}

	return w.Update(ctx, existing.Slug, wf)
}

// Delete removes a workflow by its slug.
func (w *Workflow) Delete(ctx context.Context, slug string) error {
	existing, err := w.FetchBySlug(ctx, slug)
	if err != nil {
		return err
	}

	if err := w.persistence.WorkflowRepository().Delete(ctx, existing.ID); err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return ErrWorkflowNotFound
		}

		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	w.invalidate(slug)

	return nil
}

// Validate checks field rules, node id uniqueness, edge endpoints and acyclicity.
func (w *Workflow) Validate(wf *models.Workflow) error {
	if wf == nil {
		return ErrWorkflowNil
	}

	if err := w.validate.Struct(wf); err != nil {
		return NewValidationError("Validate", "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	if !slugPattern.MatchString(wf.Slug) {
		return NewValidationError("Validate", "INVALID_SLUG",
			fmt.Sprintf("slug '%s' must be lowercase letters, digits, '-' or '_'", wf.Slug), ErrInvalidRequest)
	}

	seen := make(map[string]struct{}, len(wf.Canvas.Nodes))

	for _, node := range wf.Canvas.Nodes {
		if _, dup := seen[node.ID]; dup {
			return NewValidationError("Validate", "DUPLICATE_NODE_ID",
				fmt.Sprintf("node id '%s' is used more than once", node.ID), ErrDuplicateNodeID)
		}

		seen[node.ID] = struct{}{}
	}

	for _, edge := range wf.Canvas.Edges {
		for _, endpoint := range []string{edge.Source, edge.Target} {
			if _, ok := seen[endpoint]; !ok {
				return NewValidationError("Validate", "INVALID_EDGE",
					fmt.Sprintf("edge %s -> %s references unknown node '%s'", edge.Source, edge.Target, endpoint),
					ErrInvalidEdge)
			}
		}
	}

	if _, err := workflow.Order(wf.Canvas.Nodes, wf.Canvas.Edges); err != nil {
		return NewValidationError("Validate", "CYCLIC_GRAPH", err.Error(), ErrCyclicGraph)
	}

	return nil
}

func (w *Workflow) save(ctx context.Context, op string, wf *models.Workflow) error {
	err := w.persistence.WorkflowRepository().Save(ctx, wf)
	if err == nil {
		w.invalidate(wf.Slug)

		return nil
	}

	if errors.Is(err, persistence.ErrWorkflowAlreadyExists) {
		return &ServiceError{
			Op:      op,
			Code:    "SLUG_CONFLICT",
			Message: fmt.Sprintf("slug '%s' is already used by another workflow", wf.Slug),
			Err:     ErrSlugConflict,
		}
	}

	return fmt.Errorf("failed to save workflow: %w", err)
}

func (w *Workflow) invalidate(slug string) {
	if w.cache != nil {
		w.cache.Invalidate(slug)
	}
}
