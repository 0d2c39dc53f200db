package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"microcred/assessment-engine/internal/models"
	"microcred/assessment-engine/internal/services"
)

// Enqueuer schedules an async pipeline run after a successful submission.
type Enqueuer interface {
	Enqueue(assessmentID uuid.UUID) bool
}

type SubmissionHandler struct {
	submissions *services.SubmissionCoordinator
	worker      Enqueuer
}

func NewSubmissionHandler(submissions *services.SubmissionCoordinator, worker Enqueuer) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		worker:      worker,
	}
}

// HandleSubmit handles POST /assessments/:id/submit
func (h *SubmissionHandler) HandleSubmit(c *fiber.Ctx) error {
	assessmentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid assessment ID format",
		})
	}

	callerID := callerID(c)
	if callerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "X-Owner-ID header is required",
		})
	}

	var req models.SubmitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request payload",
			})
		}
	}

	idempotencyKey := c.Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = req.IdempotencyKey
	}

	result, err := h.submissions.Submit(assessmentID, callerID, idempotencyKey, req.Responses)
	if err != nil {
		return serviceError(c, err)
	}

	// Enqueue for immediate processing; the poller is the safety net when
	// the queue is full.
	h.worker.Enqueue(assessmentID)

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func callerID(c *fiber.Ctx) string {
	return c.Get("X-Owner-ID")
}

func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Assessment not found",
		})
	case errors.Is(err, services.ErrNotOwned):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Assessment belongs to a different owner",
		})
	case errors.Is(err, services.ErrAlreadySubmitted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Assessment has already been submitted",
		})
	case errors.Is(err, services.ErrDuplicateSubmission):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Duplicate submission: idempotency key already used",
		})
	case errors.Is(err, services.ErrExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": "Assessment has expired",
		})
	case errors.Is(err, services.ErrInvalidResponse):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
}
