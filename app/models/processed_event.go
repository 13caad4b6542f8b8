package models

import "time"

// ProcessedEvent is a write-once marker for a webhook message that already
// produced a successful downstream write.
type ProcessedEvent struct {
	WebhookEventID string    `gorm:"type:varchar(191);primaryKey" json:"webhook_event_id"`
	TenantID       uint      `gorm:"not null;index" json:"tenant_id"`
	ProcessedAt    time.Time `gorm:"not null;index" json:"processed_at"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}
