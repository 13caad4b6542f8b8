package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/testutil"
)

func TestTenantRepositoryLookups(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewTenantRepository(db)
	ctx := context.Background()

	team := models.Team{Name: "acme", IsActive: true}
	require.NoError(t, db.Create(&team).Error)
	require.NoError(t, db.Create(&models.Integration{TeamID: team.ID, DestinationID: "U-live", ChannelSecret: "s", IsActive: true}).Error)
	require.NoError(t, db.Create(&models.Integration{TeamID: team.ID, DestinationID: "U-off", ChannelSecret: "s", IsActive: false}).Error)
	require.NoError(t, db.Create(&models.Project{TeamID: team.ID, Name: "b", IsActive: true}).Error)
	require.NoError(t, db.Create(&models.Project{TeamID: team.ID, Name: "a", IsActive: true}).Error)
	require.NoError(t, db.Create(&models.Project{TeamID: team.ID, Name: "c", IsActive: false}).Error)

	in, err := repo.GetActiveIntegrationByDestination(ctx, "U-live")
	require.NoError(t, err)
	assert.Equal(t, team.ID, in.TeamID)

	_, err = repo.GetActiveIntegrationByDestination(ctx, "U-off")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	projects, err := repo.GetActiveProjects(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "b", projects[0].Name, "lowest id first")
}

func TestRuleRepositoryOrdersByPriority(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewRuleRepository(db)
	ctx := context.Background()

	for _, r := range []models.Rule{
		{ProjectID: 1, Priority: 5, MatcherType: models.MatcherKeyword, Pattern: "b", DatabaseID: "D", IsActive: true},
		{ProjectID: 1, Priority: 1, MatcherType: models.MatcherPrefix, Pattern: "a", DatabaseID: "D", IsActive: true},
		{ProjectID: 1, Priority: 0, MatcherType: models.MatcherPrefix, Pattern: "off", DatabaseID: "D", IsActive: false},
		{ProjectID: 2, Priority: 0, MatcherType: models.MatcherPrefix, Pattern: "other", DatabaseID: "D", IsActive: true},
	} {
		r := r
		require.NoError(t, repo.Create(ctx, &r))
	}

	rules, err := repo.ListActiveByProject(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "a", rules[0].Pattern)
	assert.Equal(t, "b", rules[1].Pattern)

	bad := models.Rule{ProjectID: 1, MatcherType: "glob", DatabaseID: "D"}
	assert.Error(t, repo.Create(ctx, &bad))
}

func TestAuditRepositoryFilters(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.AuditLog{TenantID: 1, Event: models.AuditJobEnqueued, JobID: "j1"}))
	require.NoError(t, repo.Create(ctx, &models.AuditLog{TenantID: 1, Event: models.AuditNoMatch}))
	require.NoError(t, repo.Create(ctx, &models.AuditLog{TenantID: 2, Event: models.AuditJobEnqueued}))

	all, err := repo.ListByTenant(ctx, 1, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enqueued, err := repo.ListByTenant(ctx, 1, models.AuditJobEnqueued, 10)
	require.NoError(t, err)
	require.Len(t, enqueued, 1)
	assert.Equal(t, "j1", enqueued[0].JobID)
}
