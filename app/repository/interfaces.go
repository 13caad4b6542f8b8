package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/models"
)

// TenantRepository reads the tenant configuration graph
type TenantRepository interface {
	GetActiveIntegrationByDestination(ctx context.Context, destinationID string) (*models.Integration, error)
	GetIntegration(ctx context.Context, id uint) (*models.Integration, error)
	GetTeam(ctx context.Context, id uint) (*models.Team, error)
	GetActiveProjects(ctx context.Context, teamID uint) ([]models.Project, error)
	GetDownstreamIntegration(ctx context.Context, id uint) (*models.DownstreamIntegration, error)
}

// RuleRepository defines the interface for rule-related database operations
type RuleRepository interface {
	Create(ctx context.Context, rule *models.Rule) error
	GetByID(ctx context.Context, id uint) (*models.Rule, error)
	ListActiveByProject(ctx context.Context, projectID uint) ([]models.Rule, error)
	Update(ctx context.Context, rule *models.Rule) error
	Delete(ctx context.Context, id uint) error
}

// AuditRepository appends and lists audit entries
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByTenant(ctx context.Context, tenantID uint, event string, limit int) ([]models.AuditLog, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Tenant TenantRepository
	Rule   RuleRepository
	Audit  AuditRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Tenant: NewTenantRepository(db),
		Rule:   NewRuleRepository(db),
		Audit:  NewAuditRepository(db),
	}
}
