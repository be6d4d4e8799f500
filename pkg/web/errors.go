package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/vesselhq/vessel/pkg/persistence"
	"github.com/vesselhq/vessel/pkg/services"
	"github.com/vesselhq/vessel/pkg/workflow"
)

func problemJSON(c fiber.Ctx, status int, problemType, detail string) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(problem)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problemJSON(c, fiber.StatusBadRequest, "validation_error", detail)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and engine errors onto problem+json
// responses. Anything unrecognized stays a 500 so internals never become an
// accidental contract.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, workflow.ErrSignatureRejected):
		// The wallet refused the signature under both checked conventions;
		// the detail carries the reason for each probe.
		return problemJSON(c, fiber.StatusUnprocessableEntity, "signature_rejected", err.Error())

	case persistence.IsExecutionNotWaiting(err):
		return problemJSON(c, fiber.StatusConflict, "execution_not_waiting", err.Error())

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		return problemJSON(c, fiber.StatusConflict, "conflict", err.Error())

	case persistence.IsWorkflowNotFound(err):
		return problemJSON(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")

	case persistence.IsExecutionNotFound(err):
		return problemJSON(c, fiber.StatusNotFound, "execution_not_found", "execution not found")

	default:
		return internalError(c, err)
	}
}
