package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChatFox/internal/pkg/jobqueue"
)

// BatchRunner runs one worker batch synchronously
type BatchRunner interface {
	RunNow(ctx context.Context) (jobqueue.BatchResult, error)
}

type WorkerController struct {
	runner BatchRunner
}

func NewWorkerController(runner BatchRunner) *WorkerController {
	return &WorkerController{runner: runner}
}

// HandleRunWorker runs a batch on demand, e.g. from an external cron
func (wc *WorkerController) HandleRunWorker(c *fiber.Ctx) error {
	res, err := wc.runner.RunNow(c.UserContext())
	if err != nil {
		log.Errorf("[Worker] on-demand batch failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to run worker batch")
	}
	return c.JSON(fiber.Map{
		"processed":   res.Processed,
		"succeeded":   res.Succeeded,
		"failed":      res.Failed,
		"duration":    res.Duration.String(),
		"duration_ms": res.Duration.Milliseconds(),
	})
}
