package workflow

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

// DefaultCacheTTL bounds how long a slug lookup may serve a stale graph.
const DefaultCacheTTL = 30 * time.Second

// Repository is the executor-facing view of the graph store. Slug lookups are
// cached; a cached graph is shared between runs and must not be mutated.
type Repository struct {
	workflows persistence.WorkflowRepository
	cache     *cache.Cache
}

func NewRepository(workflows persistence.WorkflowRepository, ttl time.Duration) *Repository {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Repository{
		workflows: workflows,
		cache:     cache.New(ttl, 2*ttl),
	}
}

// GetBySlug returns the graph for slug, or nil when none exists. Misses are not cached.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Workflow, error) {
	if cached, found := r.cache.Get(slug); found {
		if workflow, ok := cached.(*models.Workflow); ok {
			return workflow, nil
		}
	}

	workflow, err := r.workflows.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if workflow != nil {
		r.cache.SetDefault(slug, workflow)
	}

	return workflow, nil
}

// GetActive always reads through; trigger matching must see status changes immediately.
func (r *Repository) GetActive(ctx context.Context) ([]*models.Workflow, error) {
	return r.workflows.GetActive(ctx)
}

// Invalidate drops a cached slug after the graph was changed or deleted.
func (r *Repository) Invalidate(slug string) {
	r.cache.Delete(slug)
}
