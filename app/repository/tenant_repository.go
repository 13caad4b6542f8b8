package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/models"
)

type tenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) GetActiveIntegrationByDestination(ctx context.Context, destinationID string) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.WithContext(ctx).
		Where("destination_id = ? AND is_active = ?", destinationID, true).
		First(&integration).Error
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *tenantRepository) GetIntegration(ctx context.Context, id uint) (*models.Integration, error) {
	var integration models.Integration
	if err := r.db.WithContext(ctx).First(&integration, id).Error; err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *tenantRepository) GetTeam(ctx context.Context, id uint) (*models.Team, error) {
	var team models.Team
	if err := r.db.WithContext(ctx).First(&team, id).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

// GetActiveProjects returns the team's active projects, lowest id first
func (r *tenantRepository) GetActiveProjects(ctx context.Context, teamID uint) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND is_active = ?", teamID, true).
		Order("id ASC").
		Find(&projects).Error
	return projects, err
}

func (r *tenantRepository) GetDownstreamIntegration(ctx context.Context, id uint) (*models.DownstreamIntegration, error) {
	var di models.DownstreamIntegration
	if err := r.db.WithContext(ctx).First(&di, id).Error; err != nil {
		return nil, err
	}
	return &di, nil
}
