package workflow

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
	"github.com/dukex/flowforge/pkg/persistence/file"
	"github.com/dukex/flowforge/pkg/protocol"
	"github.com/dukex/flowforge/pkg/registry"
)

type executeFunc func(ctx context.Context, execCtx *models.ExecutionContext, config map[string]any) (any, error)

type funcHandler struct {
	id     string
	kind   models.NodeKind
	config map[string]any
	run    executeFunc
}

func (h *funcHandler) ID() string            { return h.id }
func (h *funcHandler) Kind() models.NodeKind { return h.kind }

func (h *funcHandler) Execute(ctx context.Context, execCtx *models.ExecutionContext, _ *slog.Logger) (any, error) {
	return h.run(ctx, execCtx, h.config)
}

type funcFactory struct {
	kind models.NodeKind
	run  executeFunc
}

func (f *funcFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return &funcHandler{id: id, kind: f.kind, config: config, run: f.run}, nil
}

func (f *funcFactory) Kind() models.NodeKind  { return f.kind }
func (f *funcFactory) Name() string           { return string(f.kind) }
func (f *funcFactory) Description() string    { return "test node" }
func (f *funcFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

type testEnv struct {
	store     persistence.Persistence
	workflows *Repository
	registry  *registry.Registry
	executor  *Executor
}

// newTestEnv wires an executor over file persistence with a few scripted node kinds:
// "echo" returns its resolved config, "fail" always errors, "block" waits for ctx.
func newTestEnv(t *testing.T, opts ...ExecutorOption) *testEnv {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(slog.Default())

	reg.RegisterNode(&funcFactory{kind: "echo", run: func(_ context.Context, _ *models.ExecutionContext, config map[string]any) (any, error) {
		return config, nil
	}})
	reg.RegisterNode(&funcFactory{kind: "fail", run: func(_ context.Context, _ *models.ExecutionContext, config map[string]any) (any, error) {
		message, _ := config["message"].(string)
		if message == "" {
			message = "boom"
		}

		return nil, &testNodeError{message: message}
	}})
	reg.RegisterNode(&funcFactory{kind: "block", run: func(ctx context.Context, _ *models.ExecutionContext, _ map[string]any) (any, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	}})

	workflows := NewRepository(store.WorkflowRepository(), time.Minute)

	return &testEnv{
		store:     store,
		workflows: workflows,
		registry:  reg,
		executor:  NewExecutor(slog.Default(), workflows, store.ExecutionRepository(), reg, opts...),
	}
}

type testNodeError struct {
	message string
}

func (e *testNodeError) Error() string { return e.message }

func (env *testEnv) saveWorkflow(t *testing.T, workflow *models.Workflow) *models.Workflow {
	t.Helper()

	if workflow.ID == "" {
		workflow.ID = "wf-" + workflow.Slug
	}

	if workflow.Name == "" {
		workflow.Name = "Workflow " + workflow.Slug
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusActive
	}

	require.NoError(t, env.store.WorkflowRepository().Save(context.Background(), workflow))

	return workflow
}

func node(id, kind string, config map[string]any) *models.Node {
	return &models.Node{ID: id, Type: kind, Config: config}
}

func graph(slug string, nodes []*models.Node, edges ...*models.Edge) *models.Workflow {
	return &models.Workflow{
		Slug:   slug,
		Canvas: models.Canvas{Nodes: nodes, Edges: edges},
	}
}
