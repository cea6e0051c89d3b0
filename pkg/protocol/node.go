// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukex/flowforge/pkg/models"
)

// Handler is a configured node ready to run inside one execution.
type Handler interface {
	// ID returns the graph node id this handler was created for
	ID() string

	// Kind returns the node type
	Kind() models.NodeKind

	// Execute runs the node. The returned value is stored in the execution
	// variables under the node id; an error is a node failure.
	Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (any, error)
}

// NodeFactory creates handlers from an already template-resolved configuration
// and provides metadata about the node type.
type NodeFactory interface {
	// Create validates the configuration and builds a handler
	Create(ctx context.Context, id string, config map[string]any) (Handler, error)

	// Kind returns the node type this factory serves
	Kind() models.NodeKind

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// HTTPDoer is the transport used by nodes that issue HTTP requests.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
