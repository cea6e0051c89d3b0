package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/flowforge/pkg/services"
	"github.com/dukex/flowforge/pkg/workflow"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	return problem(c, fiber.StatusNotFound, kind, detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps service, workflow and persistence errors to problem documents.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case errors.Is(err, workflow.ErrWorkflowInactive):
		return problem(c, fiber.StatusConflict, "workflow_inactive", err.Error())

	case services.IsNotFoundError(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	default:
		return internalError(c, err)
	}
}

var errInvalidJSON = errors.New("invalid JSON format")
