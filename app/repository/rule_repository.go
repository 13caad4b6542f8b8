package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/models"
)

// ruleRepository implements the RuleRepository interface
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new rule repository instance
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(ctx context.Context, rule *models.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *ruleRepository) GetByID(ctx context.Context, id uint) (*models.Rule, error) {
	var rule models.Rule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListActiveByProject returns active rules ordered by priority, then id
func (r *ruleRepository) ListActiveByProject(ctx context.Context, projectID uint) ([]models.Rule, error) {
	var rules []models.Rule
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Order("priority ASC, id ASC").
		Find(&rules).Error
	return rules, err
}

func (r *ruleRepository) Update(ctx context.Context, rule *models.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *ruleRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Rule{}, id).Error
}
