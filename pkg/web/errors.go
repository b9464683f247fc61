package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/nocturnelabs/vigil/pkg/notification"
	"github.com/nocturnelabs/vigil/pkg/persistence"
	"github.com/nocturnelabs/vigil/pkg/registry"
	"github.com/nocturnelabs/vigil/pkg/workflow"
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

// handleEngineError maps engine errors onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, registry.ErrWorkflowNotFound):
		return notFound(c, "workflow not found")

	case errors.Is(err, registry.ErrTaskNotFound):
		return notFound(c, "task not found")

	case errors.Is(err, workflow.ErrWorkflowDisabled):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("workflow_disabled").
			WithDetail("workflow is disabled")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, notification.ErrAlreadyAcknowledged):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("already_acknowledged").
			WithDetail("notification already acknowledged")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, notification.ErrTemplateNotFound):
		return badRequest(c, "no notification template registered for this severity")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	case persistence.IsNotificationNotFound(err):
		return notFound(c, "notification not found")

	default:
		return internalError(c, err)
	}
}
