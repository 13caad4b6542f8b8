package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ChatFox/internal/pkg/ratelimit"
)

type WebhookRouter struct {
	deps Dependencies
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// All methods reach the controller so the gateway can answer 405
	app.All("/webhook/line", ratelimit.Middleware(h.deps.WebhookLimiter), h.deps.Webhook.HandleLineWebhook)
}

func NewWebhookRouter(deps Dependencies) *WebhookRouter {
	return &WebhookRouter{deps: deps}
}
