// Package web provides the HTTP API for firing triggers and inspecting tasks.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/dukex/operion-engine/pkg/planner"
	"github.com/dukex/operion-engine/pkg/registry"
	"github.com/dukex/operion-engine/pkg/trigger"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Firer creates trigger tasks.
type Firer interface {
	Fire(ctx context.Context, req trigger.FireRequest) (*models.Task, error)
}

type APIHandlers struct {
	firer       Firer
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	firer Firer,
	persistence persistence.Persistence,
	registry *registry.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		firer:       firer,
		persistence: persistence,
		registry:    registry,
		validator:   validator,
	}
}

func (h *APIHandlers) TriggerFlowVersion(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.firer.Fire(c.Context(), trigger.FireRequest{
		AccountID:     req.AccountID,
		FlowID:        c.Params("flowId"),
		FlowVersionID: c.Params("versionId"),
		Stage:         req.Stage,
		TriggerID:     req.TriggerID,
		Payload:       req.Payload,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{
		TaskID:           task.TaskID,
		FlowSessionID:    task.FlowSessionID,
		TriggerSessionID: task.TriggerSessionID,
		Stage:            task.Stage,
	})
}

func (h *APIHandlers) SaveFlowVersion(c fiber.Ctx) error {
	var req SaveFlowVersionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := planner.Decode(req.FlowDefinition); err != nil {
		return handleError(c, err)
	}

	flowVersion := &models.FlowVersion{
		ID:             c.Params("versionId"),
		FlowID:         c.Params("flowId"),
		AccountID:      req.AccountID,
		Name:           req.Name,
		FlowDefinition: req.FlowDefinition,
		Published:      req.Published,
	}

	err := h.persistence.FlowVersionRepository().Save(c.Context(), flowVersion)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(flowVersion)
}

func (h *APIHandlers) GetFlowVersion(c fiber.Ctx) error {
	flowVersion, err := h.persistence.FlowVersionRepository().ByID(c.Context(), c.Params("versionId"))
	if err != nil {
		return handleError(c, err)
	}

	if flowVersion.FlowID != c.Params("flowId") {
		return notFound(c, "flow version not found")
	}

	return c.JSON(flowVersion)
}

func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	sessionID := c.Params("sessionId")

	tasks, err := h.persistence.TaskRepository().BySession(c.Context(), sessionID)
	if err != nil {
		return internalError(c, err)
	}

	if len(tasks) == 0 {
		return notFound(c, "flow session not found")
	}

	return c.JSON(SessionResponse{
		FlowSessionID: sessionID,
		Status:        SummarizeSession(tasks),
		Tasks:         tasks,
	})
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	task, err := h.persistence.TaskRepository().ByID(c.Context(), c.Params("taskId"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) GetPlugins(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"plugins": h.registry.IDs()})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Operion engine is healthy"
	httpStatus := http.StatusOK

	checks := fiber.Map{"persistence": "ok"}

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Operion engine is unhealthy"
		httpStatus = http.StatusServiceUnavailable
		checks["persistence"] = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"checkers":  checks,
		"timestamp": time.Now().UTC(),
	})
}
