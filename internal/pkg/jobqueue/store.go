package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/downstream"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrStuck             = errors.New("job claim expired while processing")
)

const maxErrorMessageLen = 2000

// Store is the durable job queue. Every state change is a single conditional
// UPDATE or a short transaction, so concurrent workers need no other lock.
type Store struct {
	db  *gorm.DB
	cfg StoreConfig
	now func() time.Time
}

func NewStore(db *gorm.DB, cfg StoreConfig) *Store {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = models.DefaultJobMaxAttempts
	}
	return &Store{db: db, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue stores a new queued job and returns its id
func (s *Store) Enqueue(ctx context.Context, p Payload, webhookEventID string) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	now := s.now()
	job := &models.Job{
		TenantID:       p.TenantID,
		Status:         models.JobStatusQueued,
		Attempts:       0,
		MaxAttempts:    s.cfg.MaxAttempts,
		EventType:      p.MessageType,
		WebhookEventID: webhookEventID,
		Payload:        string(raw),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return job.ID, nil
}

// FetchQueued returns up to limit eligible queued jobs, oldest first. It is a
// plain read; claiming happens per job.
func (s *Store) FetchQueued(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", models.JobStatusQueued, s.now()).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Claim moves a queued job to processing and counts the attempt. Exactly one
// concurrent caller wins; the others get false with no error.
func (s *Store) Claim(ctx context.Context, jobID string) (bool, error) {
	now := s.now()
	tx := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":     models.JobStatusProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"claimed_at": now,
			"updated_at": now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Complete marks a processing job done
func (s *Store) Complete(ctx context.Context, jobID string) error {
	now := s.now()
	tx := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.JobStatusDone,
			"processed_at": now,
			"claimed_at":   nil,
			"updated_at":   now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return s.transitionError(ctx, jobID)
	}
	return nil
}

// Fail records cause on a processing job and either requeues it or, once the
// attempts are used up, dead-letters it. dead reports the latter.
func (s *Store) Fail(ctx context.Context, jobID string, cause error) (bool, error) {
	dead := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Where("id = ?", jobID).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.Status != models.JobStatusProcessing {
			return fmt.Errorf("%w: fail from %s", ErrInvalidTransition, job.Status)
		}

		now := s.now()
		updates := map[string]interface{}{
			"last_error_message": errorMessage(cause),
			"last_error_at":      now,
			"claimed_at":         nil,
			"updated_at":         now,
		}
		if code := downstream.StatusCodeOf(cause); code != 0 {
			updates["last_error_code"] = code
		} else {
			updates["last_error_code"] = nil
		}

		if job.Attempts >= job.MaxAttempts {
			dead = true
			updates["status"] = models.JobStatusDead
			updates["next_attempt_at"] = nil
		} else {
			updates["status"] = models.JobStatusQueued
			if delay := s.retryDelay(job.Attempts); delay > 0 {
				updates["next_attempt_at"] = now.Add(delay)
			} else {
				updates["next_attempt_at"] = nil
			}
		}

		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", jobID, models.JobStatusProcessing).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return dead, nil
}

// retryDelay is base*2^(attempts-1) capped at the max delay; zero base means
// immediate eligibility.
func (s *Store) retryDelay(attempts int) time.Duration {
	base := s.cfg.RetryBaseDelay
	if base <= 0 {
		return 0
	}
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if s.cfg.RetryMaxDelay > 0 && delay >= s.cfg.RetryMaxDelay {
			return s.cfg.RetryMaxDelay
		}
	}
	if s.cfg.RetryMaxDelay > 0 && delay > s.cfg.RetryMaxDelay {
		return s.cfg.RetryMaxDelay
	}
	return delay
}

// IsProcessed reports whether a dedup marker exists for the event
func (s *Store) IsProcessed(ctx context.Context, webhookEventID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Where("webhook_event_id = ?", webhookEventID).
		Count(&count).Error
	return count > 0, err
}

// MarkProcessed writes the dedup marker once; later calls keep the original
func (s *Store) MarkProcessed(ctx context.Context, webhookEventID string, tenantID uint) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProcessedEvent{
			WebhookEventID: webhookEventID,
			TenantID:       tenantID,
			ProcessedAt:    s.now(),
		}).Error
}

// UpdateStatus applies an operator action. Requeue resets attempts and is
// refused while a write may be in flight; ignore is refused for done jobs.
func (s *Store) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, actor string) (*models.Job, error) {
	now := s.now()
	var (
		from    []models.JobStatus
		updates map[string]interface{}
	)
	switch status {
	case models.JobStatusQueued:
		from = []models.JobStatus{models.JobStatusQueued, models.JobStatusFailed, models.JobStatusDead, models.JobStatusIgnored}
		updates = map[string]interface{}{
			"status":          models.JobStatusQueued,
			"attempts":        0,
			"next_attempt_at": nil,
			"claimed_at":      nil,
			"requeued_at":     now,
			"requeued_by":     actor,
			"updated_at":      now,
		}
	case models.JobStatusIgnored:
		from = []models.JobStatus{models.JobStatusQueued, models.JobStatusProcessing, models.JobStatusFailed, models.JobStatusDead, models.JobStatusIgnored}
		updates = map[string]interface{}{
			"status":     models.JobStatusIgnored,
			"ignored_at": now,
			"ignored_by": actor,
			"updated_at": now,
		}
	default:
		return nil, fmt.Errorf("%w: operators may only set queued or ignored", ErrInvalidTransition)
	}

	tx := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", jobID, from).
		Updates(updates)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, s.transitionError(ctx, jobID)
	}
	log.Infof("[JobQueue] Job %s set to %s by %s", jobID, status, actor)
	return s.Get(ctx, jobID)
}

func (s *Store) Get(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// JobFilter narrows List; zero values match everything
type JobFilter struct {
	TenantID uint
	Status   models.JobStatus
	Limit    int
	Offset   int
}

// List returns matching jobs newest first plus the total count
func (s *Store) List(ctx context.Context, f JobFilter) ([]models.Job, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Job{})
	if f.TenantID != 0 {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var jobs []models.Job
	err := q.Order("created_at DESC").Offset(f.Offset).Limit(limit).Find(&jobs).Error
	return jobs, total, err
}

// CountByStatus returns job counts per status, optionally for one tenant
func (s *Store) CountByStatus(ctx context.Context, tenantID uint) (map[models.JobStatus]int64, error) {
	var rows []struct {
		Status models.JobStatus
		Count  int64
	}
	q := s.db.WithContext(ctx).Model(&models.Job{}).Select("status, COUNT(*) AS count")
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[models.JobStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// RecoverStuck sends processing jobs claimed before now-olderThan through the
// failure path. It returns how many were requeued and how many dead-lettered.
func (s *Store) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, int, error) {
	cutoff := s.now().Add(-olderThan)
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ? AND claimed_at < ?", models.JobStatusProcessing, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, 0, err
	}

	requeued, dead := 0, 0
	for _, id := range ids {
		isDead, err := s.Fail(ctx, id, ErrStuck)
		if err != nil {
			// finished between the scan and the update
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return requeued, dead, err
		}
		if isDead {
			dead++
		} else {
			requeued++
		}
	}
	if len(ids) > 0 {
		log.Warnf("[JobQueue] Recovered stuck jobs: requeued=%d dead=%d", requeued, dead)
	}
	return requeued, dead, nil
}

// PurgeProcessedBefore deletes dedup markers older than t
func (s *Store) PurgeProcessedBefore(ctx context.Context, t time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).
		Where("processed_at < ?", t.UTC()).
		Delete(&models.ProcessedEvent{})
	return tx.RowsAffected, tx.Error
}

func (s *Store) transitionError(ctx context.Context, jobID string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, job.Status)
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	// cut on a rune boundary so the column stays valid utf8mb4
	cut := maxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
