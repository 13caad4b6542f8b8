package router

import (
	apiv1 "github.com/ManuelReschke/ChatFox/internal/api/v1"
	"github.com/ManuelReschke/ChatFox/internal/pkg/middleware"
	"github.com/ManuelReschke/ChatFox/internal/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", ratelimit.Middleware(h.deps.APILimiter))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1", middleware.OperatorAuth(h.deps.OperatorKeys))
	apiServer := apiv1.NewAPIServer(h.deps.AdminQueue, h.deps.Worker)
	apiv1.RegisterHandlers(v1, apiServer)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
