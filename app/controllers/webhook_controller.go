package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ChatFox/internal/pkg/webhook"
)

// WebhookHandler processes one raw LINE delivery
type WebhookHandler interface {
	Handle(ctx context.Context, req webhook.Request) webhook.Response
}

// WebhookController exposes the LINE webhook endpoint
type WebhookController struct {
	gateway WebhookHandler
}

func NewWebhookController(gateway WebhookHandler) *WebhookController {
	return &WebhookController{gateway: gateway}
}

// HandleLineWebhook hands the raw body to the gateway. The body is copied
// because fiber reuses its buffers once the handler returns.
func (wc *WebhookController) HandleLineWebhook(c *fiber.Ctx) error {
	resp := wc.gateway.Handle(c.UserContext(), webhook.Request{
		Method:    c.Method(),
		Signature: c.Get("X-Line-Signature"),
		Body:      append([]byte(nil), c.Body()...),
	})

	if resp.Status == fiber.StatusOK {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": resp.Message})
	}
	if resp.Status == fiber.StatusMethodNotAllowed {
		c.Set(fiber.HeaderAllow, fiber.MethodPost)
	}
	return jsonError(c, resp.Status, resp.Message)
}
