package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/otelhelper"
	"github.com/dukex/flowforge/pkg/persistence"
	"github.com/dukex/flowforge/pkg/registry"
	"github.com/dukex/flowforge/pkg/template"
)

// ExecuteRequest starts one run of the workflow identified by WorkflowSlug.
type ExecuteRequest struct {
	WorkflowID   string
	WorkflowSlug string
	Trigger      models.TriggerSource
	Input        map[string]any
}

// ExecuteResult is the outcome of a run. Failed runs are reported here, not as errors.
type ExecuteResult struct {
	Success     bool                   `json:"success"`
	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
	Output      map[string]any         `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Executor runs workflow graphs node by node in topological order.
type Executor struct {
	logger     *slog.Logger
	workflows  *Repository
	executions persistence.ExecutionRepository
	registry   *registry.Registry
	tracer     trace.Tracer
	runTimeout time.Duration
	now        func() time.Time
}

type ExecutorOption func(*Executor)

// WithRunTimeout bounds a whole run. Expiry fails the run.
func WithRunTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.runTimeout = timeout
	}
}

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func NewExecutor(
	logger *slog.Logger,
	workflows *Repository,
	executions persistence.ExecutionRepository,
	registry *registry.Registry,
	opts ...ExecutorOption,
) *Executor {
	executor := &Executor{
		logger:     logger.With("module", "workflow_executor"),
		workflows:  workflows,
		executions: executions,
		registry:   registry,
		tracer:     otelhelper.Tracer("flowforge/workflow"),
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs the workflow to a terminal state. The returned error is
// reserved for failing to persist the initial execution record.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	executionID := "exec-" + uuid.NewString()
	execCtx := models.NewExecutionContext(executionID, req.WorkflowID, req.WorkflowSlug, req.Input)

	trigger := req.Trigger
	if trigger == "" {
		trigger = models.TriggerSourceManual
	}

	record := &models.WorkflowExecution{
		ExecutionID:  executionID,
		WorkflowID:   req.WorkflowID,
		WorkflowSlug: req.WorkflowSlug,
		Trigger:      trigger,
		Status:       models.ExecutionStatusRunning,
		StartedAt:    e.now(),
		Input:        execCtx.Input,
		Logs:         []models.LogEntry{},
	}

	if err := e.executions.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	logger := e.logger.With("execution_id", executionID, "workflow_slug", req.WorkflowSlug)
	logger.InfoContext(ctx, "Starting workflow execution", "trigger", trigger)

	runCtx := ctx

	if e.runTimeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	runCtx, span := otelhelper.StartSpan(runCtx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.WorkflowSlugKey, req.WorkflowSlug),
		attribute.String(otelhelper.TriggerSourceKey, string(trigger)),
	)
	defer span.End()

	runErr := e.run(runCtx, execCtx, logger)

	status := models.ExecutionStatusCompleted
	message := ""

	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		status = models.ExecutionStatusCancelled
		message = "execution cancelled: " + ctx.Err().Error()
	case runCtx.Err() != nil:
		status = models.ExecutionStatusFailed
		message = fmt.Sprintf("execution timed out after %s", e.runTimeout)
	default:
		status = models.ExecutionStatusFailed
		message = runErr.Error()
	}

	if runErr != nil {
		otelhelper.SetError(span, runErr, attribute.String(otelhelper.ExecutionIDKey, executionID))
		execCtx.Log(models.LogLevelError, message, "", nil)
	}

	completedAt := e.now()
	result := models.ExecutionResult{
		Status:      status,
		CompletedAt: completedAt,
		DurationMs:  completedAt.Sub(record.StartedAt).Milliseconds(),
		Error:       message,
		Logs:        execCtx.Logs(),
	}

	if status == models.ExecutionStatusCompleted {
		result.Output = execCtx.Variables()
	}

	// The terminal write must land even when the run was cancelled.
	if err := e.executions.Finish(context.WithoutCancel(ctx), executionID, result); err != nil {
		logger.ErrorContext(ctx, "Failed to finish execution record", "error", err)
	}

	logger.InfoContext(ctx, "Workflow execution finished",
		"status", status, "duration_ms", result.DurationMs, "error", message)

	return &ExecuteResult{
		Success:     status == models.ExecutionStatusCompleted,
		ExecutionID: executionID,
		Status:      status,
		Output:      result.Output,
		Error:       message,
	}, nil
}

func (e *Executor) run(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) error {
	workflow, err := e.workflows.GetBySlug(ctx, execCtx.WorkflowSlug)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", execCtx.WorkflowSlug, err)
	}

	if workflow == nil {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, execCtx.WorkflowSlug)
	}

	if execCtx.WorkflowID == "" {
		execCtx.WorkflowID = workflow.ID
	}

	ordered, err := Order(workflow.Canvas.Nodes, workflow.Canvas.Edges)
	if err != nil {
		var cyclic *CyclicGraphError
		if errors.As(err, &cyclic) {
			cyclic.WorkflowSlug = workflow.Slug
		}

		return err
	}

	for _, node := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}

		kind := node.Kind()
		if kind.IsTrigger() {
			logger.DebugContext(ctx, "Skipping trigger node", "node_id", node.ID)

			continue
		}

		result, err := e.runNode(ctx, execCtx, node, logger)
		if err != nil {
			if ctx.Err() != nil || !node.ContinuesOnError() {
				return err
			}

			logger.WarnContext(ctx, "Node failed, continuing", "node_id", node.ID, "error", err)
			execCtx.Log(models.LogLevelError, err.Error(), node.ID, nil)
		} else {
			execCtx.SetVariable(node.ID, result)
			execCtx.SetVariable(node.ID+"_output", result)
			execCtx.Log(models.LogLevelInfo, fmt.Sprintf("Node %s completed", node.ID), node.ID, nil)
		}

		if err := e.executions.UpdateLogs(context.WithoutCancel(ctx), execCtx.ExecutionID, execCtx.Logs()); err != nil {
			logger.ErrorContext(ctx, "Failed to persist execution logs", "node_id", node.ID, "error", err)
		}
	}

	return nil
}

// runNode resolves the node config against the current variables, then builds and runs its handler.
func (e *Executor) runNode(ctx context.Context, execCtx *models.ExecutionContext, node *models.Node, logger *slog.Logger) (any, error) {
	kind := node.Kind()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeKindKey, string(kind)),
	)
	defer span.End()

	nodeLogger := logger.With("node_id", node.ID, "node_kind", kind)
	nodeLogger.DebugContext(ctx, "Executing node")

	config := template.ResolveMap(node.Configuration(), execCtx.Variables())

	handler, err := e.registry.CreateNode(ctx, kind, node.ID, config)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, &NodeError{NodeID: node.ID, Kind: kind, Err: err}
	}

	result, err := handler.Execute(ctx, execCtx, nodeLogger)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, &NodeError{NodeID: node.ID, Kind: kind, Err: err}
	}

	return result, nil
}
