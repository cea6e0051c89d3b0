// Package services holds the workflow management operations shared by the API and the CLI.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/flowforge/pkg/persistence"
)

// Validation errors map to 400 responses.
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrWorkflowNil     = errors.New("workflow cannot be nil")
	ErrDuplicateNodeID = errors.New("duplicate node id")
	ErrInvalidEdge     = errors.New("edge references an unknown node")
	ErrCyclicGraph     = errors.New("workflow graph contains a cycle")
)

// Conflicts map to 409 responses.
var ErrSlugConflict = errors.New("workflow slug already in use")

var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrDuplicateNodeID) ||
		errors.Is(err, ErrInvalidEdge) ||
		errors.Is(err, ErrCyclicGraph)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSlugConflict)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
