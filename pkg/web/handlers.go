// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/persistence"
	"github.com/dukex/flowforge/pkg/registry"
	"github.com/dukex/flowforge/pkg/services"
	"github.com/dukex/flowforge/pkg/workflow"
)

type APIHandlers struct {
	workflowService *services.Workflow
	executor        *workflow.Executor
	jobs            *workflow.JobQueue
	dispatcher      *workflow.Dispatcher
	persistence     persistence.Persistence
	validator       *validator.Validate
	registry        *registry.Registry
}

// Dependencies groups what the handlers need. Dispatcher may be nil, in which
// case the trigger endpoint answers 503.
type Dependencies struct {
	WorkflowService *services.Workflow
	Executor        *workflow.Executor
	Jobs            *workflow.JobQueue
	Dispatcher      *workflow.Dispatcher
	Persistence     persistence.Persistence
	Validator       *validator.Validate
	Registry        *registry.Registry
}

func NewAPIHandlers(deps Dependencies) *APIHandlers {
	validate := deps.Validator
	if validate == nil {
		validate = services.NewValidator()
	}

	return &APIHandlers{
		workflowService: deps.WorkflowService,
		executor:        deps.Executor,
		jobs:            deps.Jobs,
		dispatcher:      deps.Dispatcher,
		persistence:     deps.Persistence,
		validator:       validate,
		registry:        deps.Registry,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/nodes", h.GetNodes)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:slug", h.GetWorkflow)
	w.Put("/:slug", h.UpdateWorkflow)
	w.Delete("/:slug", h.DeleteWorkflow)
	w.Post("/:slug/execute", h.ExecuteWorkflow)
	w.Post("/:slug/schedule", h.ScheduleWorkflow)
	w.Get("/:slug/executions", h.GetWorkflowExecutions)

	router.Post("/triggers", h.Trigger)
	router.Get("/executions/:id", h.GetExecution)
	router.Get("/jobs", h.GetJobs)
	router.Get("/jobs/:id", h.GetJob)
	router.Get("/dead-letters", h.GetDeadLetters)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context(), models.WorkflowStatus(c.Query("status")))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	wf, err := h.workflowService.FetchBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	req, err := h.bindWorkflow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	req, err := h.bindWorkflow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), c.Params("slug"), req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("slug")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecuteWorkflow runs the workflow in the request and returns its result.
// A failed run is still a 200; the body carries the status and error.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	var req ExecuteRequest
	if err := h.bindOptionalJSON(c, &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	wf, err := h.workflowService.FetchBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := h.executor.Execute(c.Context(), workflow.ExecuteRequest{
		WorkflowID:   wf.ID,
		WorkflowSlug: wf.Slug,
		Trigger:      models.TriggerSourceAPI,
		Input:        req.Input,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ScheduleWorkflow(c fiber.Ctx) error {
	var req ScheduleRequest
	if err := h.bindOptionalJSON(c, &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule := workflow.ScheduleRequest{
		WorkflowSlug: c.Params("slug"),
		Input:        req.Input,
		MaxRetries:   req.MaxRetries,
	}

	if req.ScheduledFor != nil {
		schedule.ScheduledFor = *req.ScheduledFor
	}

	job, err := h.jobs.Schedule(c.Context(), schedule)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(job)
}

// Trigger hands an external event to the dispatcher. Runs happen asynchronously.
func (h *APIHandlers) Trigger(c fiber.Ctx) error {
	if h.dispatcher == nil {
		return problem(c, fiber.StatusServiceUnavailable, "dispatcher_unavailable",
			"trigger dispatch is not enabled on this server")
	}

	var event models.TriggerEvent
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(event); err != nil {
		return badRequest(c, err.Error())
	}

	dispatched := h.dispatcher.Trigger(c.Context(), event)

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{Dispatched: dispatched})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.persistence.ExecutionRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	if execution == nil {
		return notFound(c, "execution_not_found", "execution not found")
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	limit, err := queryLimit(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions, err := h.persistence.ExecutionRepository().ListByWorkflowSlug(c.Context(), c.Params("slug"), limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) GetJobs(c fiber.Ctx) error {
	jobs, err := h.persistence.JobRepository().List(c.Context(), models.JobStatus(c.Query("status")))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"jobs":        jobs,
		"total_count": len(jobs),
	})
}

func (h *APIHandlers) GetJob(c fiber.Ctx) error {
	job, err := h.persistence.JobRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	if job == nil {
		return notFound(c, "job_not_found", "job not found")
	}

	return c.JSON(job)
}

func (h *APIHandlers) GetDeadLetters(c fiber.Ctx) error {
	limit, err := queryLimit(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	letters, err := h.persistence.DeadLetterRepository().List(c.Context(), limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"dead_letters": letters,
		"total_count":  len(letters),
	})
}

func (h *APIHandlers) GetNodes(c fiber.Ctx) error {
	factories := h.registry.GetAvailableNodes()

	nodes := make([]NodeResponse, 0, len(factories))
	for _, factory := range factories {
		nodes = append(nodes, TransformNodeResponse(factory))
	}

	return c.JSON(nodes)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())
	nodeCount := len(h.registry.GetAvailableNodes())

	status := "unhealthy"
	message := "Flowforge API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk && nodeCount > 0 {
		status = "healthy"
		message = "Flowforge API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   strconv.Itoa(nodeCount) + " node kinds registered",
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) bindWorkflow(c fiber.Ctx) (*WorkflowRequest, error) {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, errInvalidJSON
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return &req, nil
}

// bindOptionalJSON accepts an empty body as the zero request.
func (h *APIHandlers) bindOptionalJSON(c fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}

	return c.Bind().JSON(out)
}

func queryLimit(c fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return persistence.DefaultListLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}

	return persistence.NormalizeLimit(limit), nil
}
