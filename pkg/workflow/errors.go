package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
)

var (
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrWorkflowInactive = errors.New("workflow is not active")
)

// NodeError wraps a failure raised while creating or running one node.
type NodeError struct {
	NodeID string
	Kind   models.NodeKind
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s) failed: %v", e.NodeID, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
