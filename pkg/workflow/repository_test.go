package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence/file"
)

func TestRepository_GetBySlugIsCached(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	repo := NewRepository(store.WorkflowRepository(), time.Minute)

	missing, err := repo.GetBySlug(ctx, "orders")
	require.NoError(t, err)
	assert.Nil(t, missing)

	original := &models.Workflow{ID: "wf-1", Name: "Orders", Slug: "orders", Status: models.WorkflowStatusActive}
	require.NoError(t, store.WorkflowRepository().Save(ctx, original))

	first, err := repo.GetBySlug(ctx, "orders")
	require.NoError(t, err)
	require.NotNil(t, first, "misses must not be cached")
	assert.Equal(t, 1, first.Version)

	require.NoError(t, store.WorkflowRepository().Save(ctx, original))

	cached, err := repo.GetBySlug(ctx, "orders")
	require.NoError(t, err)
	assert.Same(t, first, cached)

	repo.Invalidate("orders")

	fresh, err := repo.GetBySlug(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Version)
}

func TestRepository_GetActiveReadsThrough(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	repo := NewRepository(store.WorkflowRepository(), 0)

	workflow := &models.Workflow{ID: "wf-1", Name: "Orders", Slug: "orders", Status: models.WorkflowStatusActive}
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	workflow.Status = models.WorkflowStatusInactive
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	active, err = repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
