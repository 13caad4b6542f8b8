package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/app/repository"
	"github.com/ManuelReschke/ChatFox/internal/pkg/audit"
	"github.com/ManuelReschke/ChatFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ChatFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ChatFox/internal/pkg/middleware"
)

// TenantCache drops cached tenant resolutions and channel credentials
type TenantCache interface {
	Invalidate(ctx context.Context, destinationID string) error
	InvalidateIntegration(integrationID uint) error
	Clear() error
}

// AdminQueueController serves the operator API over the job queue
type AdminQueueController struct {
	store     *jobqueue.Store
	audit     audit.Sink
	auditRepo repository.AuditRepository
	metrics   counter.Reader
	tenants   TenantCache
	trigger   func()
}

// AdminQueueDeps wires the operator API
type AdminQueueDeps struct {
	Store     *jobqueue.Store
	Audit     audit.Sink
	AuditRepo repository.AuditRepository
	Metrics   counter.Reader
	Tenants   TenantCache
	// Trigger, when set, starts a worker batch after a requeue
	Trigger func()
}

func NewAdminQueueController(deps AdminQueueDeps) *AdminQueueController {
	return &AdminQueueController{
		store:     deps.Store,
		audit:     deps.Audit,
		auditRepo: deps.AuditRepo,
		metrics:   deps.Metrics,
		tenants:   deps.Tenants,
		trigger:   deps.Trigger,
	}
}

func jobView(job *models.Job) fiber.Map {
	return fiber.Map{
		"id":                 job.ID,
		"tenant_id":          job.TenantID,
		"status":             job.Status,
		"event_type":         job.EventType,
		"webhook_event_id":   job.WebhookEventID,
		"attempts":           job.Attempts,
		"max_attempts":       job.MaxAttempts,
		"last_error_code":    job.LastErrorCode,
		"last_error_message": job.LastErrorMessage,
		"last_error_at":      formatTimePtr(job.LastErrorAt),
		"next_attempt_at":    formatTimePtr(job.NextAttemptAt),
		"processed_at":       formatTimePtr(job.ProcessedAt),
		"requeued_at":        formatTimePtr(job.RequeuedAt),
		"requeued_by":        job.RequeuedBy,
		"ignored_at":         formatTimePtr(job.IgnoredAt),
		"ignored_by":         job.IgnoredBy,
		"created_at":         job.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":         job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleListJobs lists jobs newest first, filtered by tenant_id and status
func (aqc *AdminQueueController) HandleListJobs(c *fiber.Ctx) error {
	tenantID, ok := queryUint(c, "tenant_id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "tenant_id must be a positive integer")
	}
	status := strings.TrimSpace(c.Query("status"))
	if status != "" && !models.ValidJobStatus(status) {
		return jsonError(c, fiber.StatusBadRequest, "unknown status "+strconv.Quote(status))
	}
	filter := jobqueue.JobFilter{
		TenantID: tenantID,
		Status:   models.JobStatus(status),
		Limit:    c.QueryInt("limit", 50),
		Offset:   c.QueryInt("offset", 0),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	jobs, total, err := aqc.store.List(c.UserContext(), filter)
	if err != nil {
		log.Errorf("[JobQueue] list jobs failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to list jobs")
	}
	items := make([]fiber.Map, 0, len(jobs))
	for i := range jobs {
		items = append(items, jobView(&jobs[i]))
	}
	return c.JSON(fiber.Map{
		"jobs":   items,
		"total":  total,
		"offset": filter.Offset,
	})
}

// HandleGetJob returns one job including its payload snapshot
func (aqc *AdminQueueController) HandleGetJob(c *fiber.Ctx) error {
	job, err := aqc.store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return aqc.jobError(c, err)
	}
	view := jobView(job)
	if p, err := jobqueue.DecodePayload(job); err == nil {
		p.ReplyToken = ""
		view["payload"] = p
	}
	return c.JSON(view)
}

// HandleJobStats counts jobs per status
func (aqc *AdminQueueController) HandleJobStats(c *fiber.Ctx) error {
	tenantID, ok := queryUint(c, "tenant_id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "tenant_id must be a positive integer")
	}
	counts, err := aqc.store.CountByStatus(c.UserContext(), tenantID)
	if err != nil {
		log.Errorf("[JobQueue] job stats failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to count jobs")
	}

	out := fiber.Map{}
	var total int64
	for _, s := range []models.JobStatus{
		models.JobStatusQueued, models.JobStatusProcessing, models.JobStatusDone,
		models.JobStatusFailed, models.JobStatusDead, models.JobStatusIgnored,
	} {
		out[string(s)] = counts[s]
		total += counts[s]
	}
	return c.JSON(fiber.Map{"tenant_id": tenantID, "counts": out, "total": total})
}

// HandleRequeueJob puts a job back in the queue with a fresh attempt budget
func (aqc *AdminQueueController) HandleRequeueJob(c *fiber.Ctx) error {
	return aqc.transition(c, models.JobStatusQueued, models.AuditJobRequeued)
}

// HandleIgnoreJob parks a job for good
func (aqc *AdminQueueController) HandleIgnoreJob(c *fiber.Ctx) error {
	return aqc.transition(c, models.JobStatusIgnored, models.AuditJobIgnored)
}

func (aqc *AdminQueueController) transition(c *fiber.Ctx, status models.JobStatus, event string) error {
	ctx := c.UserContext()
	actor := middleware.OperatorName(c)

	job, err := aqc.store.UpdateStatus(ctx, c.Params("id"), status, actor)
	if err != nil {
		return aqc.jobError(c, err)
	}
	aqc.audit.Record(ctx, audit.Event{
		TenantID:       job.TenantID,
		Name:           event,
		JobID:          job.ID,
		WebhookEventID: job.WebhookEventID,
		Detail:         map[string]interface{}{"actor": actor},
	})
	if status == models.JobStatusQueued && aqc.trigger != nil {
		aqc.trigger()
	}
	return c.JSON(jobView(job))
}

func (aqc *AdminQueueController) jobError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, jobqueue.ErrJobNotFound):
		return jsonError(c, fiber.StatusNotFound, "Job not found")
	case errors.Is(err, jobqueue.ErrInvalidTransition):
		return jsonError(c, fiber.StatusConflict, err.Error())
	}
	log.Errorf("[JobQueue] operator request failed: %v", err)
	return jsonError(c, fiber.StatusInternalServerError, "Job operation failed")
}

// HandleTenantMetrics returns one tenant's daily counters (?date=YYYY-MM-DD, default today UTC)
func (aqc *AdminQueueController) HandleTenantMetrics(c *fiber.Ctx) error {
	tenantID, err := strconv.ParseUint(c.Params("tenantID"), 10, 64)
	if err != nil || tenantID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "tenantID must be a positive integer")
	}
	date := strings.TrimSpace(c.Query("date"))
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}
	}

	daily, err := aqc.metrics.Daily(c.UserContext(), uint(tenantID), date)
	if err != nil {
		log.Errorf("[Metrics] read failed for tenant %d: %v", tenantID, err)
		return jsonError(c, fiber.StatusServiceUnavailable, "Metrics store unavailable")
	}
	return c.JSON(daily)
}

type invalidateRequest struct {
	DestinationID string `json:"destination_id"`
	IntegrationID uint   `json:"integration_id"`
	All           bool   `json:"all"`
}

// HandleInvalidateTenantCache drops one destination's cached tenant and
// credentials, one integration's credentials, or with all=true every entry
func (aqc *AdminQueueController) HandleInvalidateTenantCache(c *fiber.Ctx) error {
	var req invalidateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.DestinationID = strings.TrimSpace(req.DestinationID)

	switch {
	case req.All:
		if err := aqc.tenants.Clear(); err != nil {
			log.Errorf("[TenantResolver] cache clear failed: %v", err)
			return jsonError(c, fiber.StatusInternalServerError, "Failed to clear tenant cache")
		}
		log.Infof("[TenantResolver] cache cleared by %s", middleware.OperatorName(c))
		return c.JSON(fiber.Map{"invalidated": "all"})
	case req.DestinationID != "":
		if err := aqc.tenants.Invalidate(c.UserContext(), req.DestinationID); err != nil {
			log.Errorf("[TenantResolver] cache invalidation failed for %s: %v", req.DestinationID, err)
			return jsonError(c, fiber.StatusInternalServerError, "Failed to invalidate tenant cache")
		}
		return c.JSON(fiber.Map{"invalidated": req.DestinationID})
	case req.IntegrationID != 0:
		if err := aqc.tenants.InvalidateIntegration(req.IntegrationID); err != nil {
			log.Errorf("[TenantResolver] credential invalidation failed for integration %d: %v", req.IntegrationID, err)
			return jsonError(c, fiber.StatusInternalServerError, "Failed to invalidate credentials")
		}
		return c.JSON(fiber.Map{"invalidated": fiber.Map{"integration_id": req.IntegrationID}})
	}
	return jsonError(c, fiber.StatusBadRequest, "destination_id, integration_id or all=true is required")
}

// HandleListAudit returns a tenant's latest audit entries
func (aqc *AdminQueueController) HandleListAudit(c *fiber.Ctx) error {
	tenantID, ok := queryUint(c, "tenant_id")
	if !ok || tenantID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "tenant_id is required")
	}
	entries, err := aqc.auditRepo.ListByTenant(c.UserContext(), tenantID, c.Query("event"), c.QueryInt("limit", 100))
	if err != nil {
		log.Errorf("[Audit] list failed for tenant %d: %v", tenantID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to list audit entries")
	}
	return c.JSON(fiber.Map{"entries": entries})
}
