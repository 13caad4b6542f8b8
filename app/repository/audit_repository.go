package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/models"
)

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByTenant returns the newest entries first; event filters when non-empty
func (r *auditRepository) ListByTenant(ctx context.Context, tenantID uint, event string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if event != "" {
		q = q.Where("event = ?", event)
	}
	var entries []models.AuditLog
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
