package handlers

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"microcred/assessment-engine/internal/models"
	"microcred/assessment-engine/internal/services"
)

type StatusHandler struct {
	status *services.StatusService
}

func NewStatusHandler(status *services.StatusService) *StatusHandler {
	return &StatusHandler{
		status: status,
	}
}

// HandleGetStatus handles GET /assessments/:id/status
func (h *StatusHandler) HandleGetStatus(c *fiber.Ctx) error {
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

	status, err := h.status.GetStatus(assessmentID, callerID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(status)
}

// HandleRegisterWebhook handles POST /assessments/:id/webhook
func (h *StatusHandler) HandleRegisterWebhook(c *fiber.Ctx) error {
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

	var req models.WebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}
	if !validWebhookURL(req.URL) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url must be a valid http or https URL",
		})
	}

	registration, err := h.status.RegisterWebhook(assessmentID, callerID, req.URL)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(registration)
}

// HandleGetResult handles GET /assessments/:id/result
func (h *StatusHandler) HandleGetResult(c *fiber.Ctx) error {
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

	result, err := h.status.GetResult(assessmentID, callerID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(result)
}

func validWebhookURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
