package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus is the lifecycle state of a queued downstream write
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	// JobStatusFailed is reserved; the worker requeues or dead-letters instead.
	JobStatusFailed  JobStatus = "failed"
	JobStatusDead    JobStatus = "dead"
	JobStatusIgnored JobStatus = "ignored"
)

// JobEventType is the LINE message type that produced the job
type JobEventType string

const (
	JobEventText     JobEventType = "text"
	JobEventImage    JobEventType = "image"
	JobEventLocation JobEventType = "location"
)

const DefaultJobMaxAttempts = 5

// Job is one pending or finished downstream write. Payload is an immutable
// JSON snapshot taken at enqueue time.
type Job struct {
	ID               string       `gorm:"type:char(36);primaryKey" json:"id"`
	TenantID         uint         `gorm:"not null;index:idx_jobs_tenant_status,priority:1" json:"tenant_id"`
	Status           JobStatus    `gorm:"type:varchar(20);not null;default:'queued';index:idx_jobs_status_created,priority:1;index:idx_jobs_tenant_status,priority:2" json:"status"`
	Attempts         int          `gorm:"type:int unsigned;not null;default:0" json:"attempts"`
	MaxAttempts      int          `gorm:"type:int unsigned;not null;default:5" json:"max_attempts"`
	EventType        JobEventType `gorm:"type:varchar(20);not null" json:"event_type"`
	WebhookEventID   string       `gorm:"type:varchar(191);not null;index" json:"webhook_event_id"`
	Payload          string       `gorm:"type:longtext;not null" json:"-"`
	LastErrorCode    *int         `json:"last_error_code,omitempty"`
	LastErrorMessage *string      `gorm:"type:text" json:"last_error_message,omitempty"`
	LastErrorAt      *time.Time   `gorm:"type:timestamp;default:null" json:"last_error_at,omitempty"`
	NextAttemptAt    *time.Time   `gorm:"type:timestamp;default:null;index" json:"next_attempt_at,omitempty"`
	ClaimedAt        *time.Time   `gorm:"type:timestamp;default:null" json:"claimed_at,omitempty"`
	ProcessedAt      *time.Time   `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	RequeuedAt       *time.Time   `gorm:"type:timestamp;default:null" json:"requeued_at,omitempty"`
	RequeuedBy       *string      `gorm:"type:varchar(100)" json:"requeued_by,omitempty"`
	IgnoredAt        *time.Time   `gorm:"type:timestamp;default:null" json:"ignored_at,omitempty"`
	IgnoredBy        *string      `gorm:"type:varchar(100)" json:"ignored_by,omitempty"`
	CreatedAt        time.Time    `gorm:"index:idx_jobs_status_created,priority:2" json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// TableName returns the table name for Job
func (Job) TableName() string {
	return "jobs"
}

// BeforeCreate assigns an id and defaults
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = JobStatusQueued
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = DefaultJobMaxAttempts
	}
	return nil
}

// ValidJobStatus reports whether s is a known status value
func ValidJobStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusProcessing, JobStatusDone, JobStatusFailed, JobStatusDead, JobStatusIgnored:
		return true
	}
	return false
}
