package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to controllers to keep behavior consistent
	"github.com/ManuelReschke/ChatFox/app/controllers"
)

// Pong is the ping response body
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer serves the operator API documented in docs/openapi.yml
type APIServer struct {
	queue  *controllers.AdminQueueController
	worker *controllers.WorkerController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(queue *controllers.AdminQueueController, worker *controllers.WorkerController) *APIServer {
	return &APIServer{queue: queue, worker: worker}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// RegisterHandlers mounts every v1 operation on router. Static paths come
// before their parameterised siblings.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	router.Post("/worker/run", s.worker.HandleRunWorker)

	router.Get("/jobs", s.queue.HandleListJobs)
	router.Get("/jobs/stats", s.queue.HandleJobStats)
	router.Get("/jobs/:id", s.queue.HandleGetJob)
	router.Post("/jobs/:id/requeue", s.queue.HandleRequeueJob)
	router.Post("/jobs/:id/ignore", s.queue.HandleIgnoreJob)

	router.Get("/metrics/:tenantID", s.queue.HandleTenantMetrics)
	router.Post("/tenants/cache/invalidate", s.queue.HandleInvalidateTenantCache)
	router.Get("/audit", s.queue.HandleListAudit)
}
