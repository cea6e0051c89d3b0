package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowforge/pkg/models"
)

// SkippedHandler stands in for node kinds nothing is registered for.
type SkippedHandler struct {
	id   string
	kind models.NodeKind
}

func NewSkippedHandler(id string, kind models.NodeKind) *SkippedHandler {
	return &SkippedHandler{id: id, kind: kind}
}

func (h *SkippedHandler) ID() string {
	return h.id
}

func (h *SkippedHandler) Kind() models.NodeKind {
	return h.kind
}

func (h *SkippedHandler) Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	reason := fmt.Sprintf("no handler for node type '%s'", h.kind)

	logger.WarnContext(ctx, "Skipping node", "node_id", h.id, "reason", reason)
	execCtx.Log(models.LogLevelWarn, "Node skipped: "+reason, h.id, nil)

	return map[string]any{"skipped": true, "reason": reason}, nil
}
