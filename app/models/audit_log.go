package models

import "time"

const (
	AuditWebhookReceived = "webhook_received"
	AuditJobEnqueued     = "job_enqueued"
	AuditNoMatch         = "no_match"
	AuditWriteSucceeded  = "write_succeeded"
	AuditWriteFailed     = "write_failed"
	AuditJobDead         = "job_dead"
	AuditJobRequeued     = "job_requeued"
	AuditJobIgnored      = "job_ignored"
)

// AuditLog is an append-only trail of pipeline events per tenant
type AuditLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       uint      `gorm:"not null;index:idx_audit_tenant_created,priority:1" json:"tenant_id"`
	Event          string    `gorm:"type:varchar(50);not null;index" json:"event"`
	JobID          string    `gorm:"type:char(36);default:'';index" json:"job_id,omitempty"`
	WebhookEventID string    `gorm:"type:varchar(191);default:''" json:"webhook_event_id,omitempty"`
	Detail         string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_audit_tenant_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
