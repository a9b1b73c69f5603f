package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"chatrelay/internal/chat"
	"chatrelay/pkg/types"
)

type Handler struct {
	orchestrator *chat.Orchestrator
}

func NewHandler(o *chat.Orchestrator) *Handler {
	return &Handler{orchestrator: o}
}

// Chat handles POST /v1/chat
func (h *Handler) Chat(c *fiber.Ctx) error {
	var req types.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}

	resp, err := h.orchestrator.Chat(c.Context(), req)
	if err != nil {
		var validationErr *chat.ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: validationErr.Reason})
		}

		var generationErr *chat.GenerationError
		if errors.As(err, &generationErr) {
			return c.Status(fiber.StatusBadGateway).JSON(types.ErrorResponse{Error: generationErr.Error()})
		}

		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Internal server error"})
	}

	return c.JSON(resp)
}
