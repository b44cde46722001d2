package web

import (
	"errors"

	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/dukex/operion-engine/pkg/planner"
	"github.com/dukex/operion-engine/pkg/trigger"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps engine errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, trigger.ErrInvalidRequest),
		errors.Is(err, planner.ErrMalformedWorkflow),
		errors.Is(err, planner.ErrTriggerNotFound),
		errors.Is(err, planner.ErrCycleDetected):
		return badRequest(c, err.Error())

	case errors.Is(err, trigger.ErrAccountMismatch):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("forbidden").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case persistence.IsFlowVersionExists(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail("flow versions are immutable, save a new version id instead")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsFlowVersionNotFound(err):
		return notFound(c, "flow version not found")

	case persistence.IsTaskNotFound(err):
		return notFound(c, "task not found")

	default:
		return internalError(c, err)
	}
}
