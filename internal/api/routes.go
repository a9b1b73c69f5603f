package api

import (
	"github.com/gofiber/fiber/v2"

	"chatrelay/internal/chat"
)

func SetupRoutes(app *fiber.App, o *chat.Orchestrator) {
	h := NewHandler(o)

	v1 := app.Group("/v1")
	v1.Post("/chat", h.Chat)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
