// Package log provides the log node, which writes to the run's log buffer
// and mirrors the entry to the process logger.
package log

import (
	"context"
	"log/slog"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
)

type LogNode struct {
	id      string
	message string
	level   models.LogLevel
	data    any
}

func NewLogNode(id string, config map[string]any) *LogNode {
	return &LogNode{
		id:      id,
		message: nodes.StringOr(config, "message", ""),
		level:   models.ParseLogLevel(nodes.StringOr(config, "level", string(models.LogLevelInfo))),
		data:    config["data"],
	}
}

func (n *LogNode) ID() string {
	return n.id
}

func (n *LogNode) Kind() models.NodeKind {
	return models.NodeKindLog
}

func (n *LogNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	execCtx.Log(n.level, n.message, n.id, n.data)

	attrs := []any{"node_id", n.id, "execution_id", execCtx.ExecutionID}
	if n.data != nil {
		attrs = append(attrs, "data", n.data)
	}

	logger.Log(ctx, slogLevel(n.level), n.message, attrs...)

	return map[string]any{
		"logged":  true,
		"level":   string(n.level),
		"message": n.message,
	}, nil
}

func slogLevel(level models.LogLevel) slog.Level {
	switch level {
	case models.LogLevelDebug:
		return slog.LevelDebug
	case models.LogLevelWarn:
		return slog.LevelWarn
	case models.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
