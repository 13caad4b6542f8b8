package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/audit"
	"github.com/ManuelReschke/ChatFox/internal/pkg/downstream"
	"github.com/ManuelReschke/ChatFox/internal/pkg/metrics/counter"
)

// BatchResult tallies one RunBatch. Lost claims are not counted.
type BatchResult struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}

// Dependencies wires the worker to its collaborators
type Dependencies struct {
	Store   *Store
	Writer  downstream.Writer
	Tasks   TaskDeps
	Audit   audit.Sink
	Metrics counter.Recorder
}

type Worker struct {
	deps Dependencies
	cfg  WorkerConfig
}

func NewWorker(deps Dependencies, cfg WorkerConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	return &Worker{deps: deps, cfg: cfg}
}

var errClaimLost = errors.New("claim lost")

// RunBatch fetches one batch of queued jobs and processes each independently.
// Only a failed fetch is returned as an error; job failures are tallied.
func (w *Worker) RunBatch(ctx context.Context) (BatchResult, error) {
	start := time.Now()
	var res BatchResult

	jobs, err := w.deps.Store.FetchQueued(ctx, w.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("fetch queued jobs: %w", err)
	}
	if len(jobs) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			err := w.processJob(ctx, &job)
			if errors.Is(err, errClaimLost) {
				return nil
			}
			mu.Lock()
			res.Processed++
			if err != nil {
				res.Failed++
			} else {
				res.Succeeded++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res.Duration = time.Since(start)
	log.Infof("[Worker] Batch done: processed=%d succeeded=%d failed=%d duration=%s",
		res.Processed, res.Succeeded, res.Failed, res.Duration)
	return res, nil
}

func (w *Worker) processJob(ctx context.Context, job *models.Job) error {
	claimed, err := w.deps.Store.Claim(ctx, job.ID)
	if err != nil {
		log.Errorf("[Worker] Claim of job %s failed: %v", job.ID, err)
		return err
	}
	if !claimed {
		log.Debugf("[Worker] Job %s already claimed elsewhere", job.ID)
		return errClaimLost
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	result, err := w.execute(jobCtx, job)
	latency := time.Since(start)
	if err != nil {
		w.handleFailure(ctx, job, err)
		return err
	}

	// bookkeeping uses the outer context so a slow write cannot starve it
	if err := w.deps.Store.Complete(ctx, job.ID); err != nil {
		log.Errorf("[Worker] Job %s written but not completed: %v", job.ID, err)
		return err
	}
	if err := w.deps.Store.MarkProcessed(ctx, job.WebhookEventID, job.TenantID); err != nil {
		log.Warnf("[Worker] Failed to mark event %s processed: %v", job.WebhookEventID, err)
	}
	w.deps.Metrics.RecordSuccess(ctx, job.TenantID, latency)
	w.deps.Audit.Record(ctx, audit.Event{
		TenantID:       job.TenantID,
		Name:           models.AuditWriteSucceeded,
		JobID:          job.ID,
		WebhookEventID: job.WebhookEventID,
		Detail: map[string]interface{}{
			"page_id":    result.PageID,
			"latency_ms": latency.Milliseconds(),
		},
	})
	log.Infof("[Worker] Job %s done (page %s) in %s", job.ID, result.PageID, latency)
	return nil
}

func (w *Worker) execute(ctx context.Context, job *models.Job) (downstream.Result, error) {
	payload, err := DecodePayload(job)
	if err != nil {
		return downstream.Result{}, err
	}
	task, err := NewTask(job.EventType, payload)
	if err != nil {
		return downstream.Result{}, err
	}
	write, err := task.Build(ctx, w.deps.Tasks)
	if err != nil {
		return downstream.Result{}, err
	}
	return w.deps.Writer.Create(ctx, write)
}

func (w *Worker) handleFailure(ctx context.Context, job *models.Job, cause error) {
	status := downstream.StatusCodeOf(cause)
	class := counter.Classify(status)

	dead, err := w.deps.Store.Fail(ctx, job.ID, cause)
	if err != nil {
		log.Errorf("[Worker] Failed to record failure of job %s: %v", job.ID, err)
	}
	w.deps.Metrics.RecordFailure(ctx, job.TenantID, class, dead)

	detail := map[string]interface{}{
		"error":   errorMessage(cause),
		"class":   string(class),
		"attempt": job.Attempts + 1,
	}
	if status != 0 {
		detail["status_code"] = status
	}
	w.deps.Audit.Record(ctx, audit.Event{
		TenantID:       job.TenantID,
		Name:           models.AuditWriteFailed,
		JobID:          job.ID,
		WebhookEventID: job.WebhookEventID,
		Detail:         detail,
	})
	if dead {
		w.deps.Audit.Record(ctx, audit.Event{
			TenantID:       job.TenantID,
			Name:           models.AuditJobDead,
			JobID:          job.ID,
			WebhookEventID: job.WebhookEventID,
		})
		log.Errorf("[Worker] Job %s dead-lettered after %d attempts: %v", job.ID, job.Attempts+1, cause)
		return
	}
	log.Warnf("[Worker] Job %s failed (attempt %d), requeued: %v", job.ID, job.Attempts+1, cause)
}
