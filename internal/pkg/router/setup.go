package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ChatFox/app/controllers"
	"github.com/ManuelReschke/ChatFox/internal/pkg/middleware"
	"github.com/ManuelReschke/ChatFox/internal/pkg/ratelimit"
)

// Router installs a group of routes on the app
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the constructed controllers and guards the routes use
type Dependencies struct {
	Webhook    *controllers.WebhookController
	AdminQueue *controllers.AdminQueueController
	Worker     *controllers.WorkerController

	OperatorKeys   []middleware.OperatorKey
	APILimiter     *ratelimit.Limiter
	WebhookLimiter *ratelimit.Limiter
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// The webhook is public (signature checked in the gateway); the operator
	// API sits behind API key auth.
	setup(app, NewWebhookRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
