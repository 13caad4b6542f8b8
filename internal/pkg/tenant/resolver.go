package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/repository"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

// ErrTenantNotFound means the destination maps to no active tenant. Callers
// ignore the event instead of failing.
var ErrTenantNotFound = errors.New("tenant not found")

type ReplyMessages struct {
	Received string `json:"received"`
	NoMatch  string `json:"no_match"`
}

type Settings struct {
	ReplyEnabled  bool          `json:"reply_enabled"`
	ReplyMessages ReplyMessages `json:"reply_messages"`
}

// Config is the resolved routing context for one LINE destination
type Config struct {
	TenantID                uint     `json:"tenant_id"`
	TeamID                  uint     `json:"team_id"`
	ProjectID               uint     `json:"project_id"`
	IntegrationID           uint     `json:"integration_id"`
	DownstreamIntegrationID uint     `json:"downstream_integration_id"`
	Settings                Settings `json:"settings"`
}

// CacheTTL returns TENANT_CACHE_TTL, five minutes by default
func CacheTTL() time.Duration {
	return env.GetEnvDuration("TENANT_CACHE_TTL", 5*time.Minute)
}

type Resolver struct {
	repo  repository.TenantRepository
	cache *cache.Cache
}

func NewResolver(repo repository.TenantRepository, c *cache.Cache) *Resolver {
	return &Resolver{repo: repo, cache: c}
}

// Resolve walks integration -> team -> project. Any missing or inactive link
// yields ErrTenantNotFound. Only successful resolutions are cached.
func (r *Resolver) Resolve(ctx context.Context, destinationID string) (*Config, error) {
	if destinationID == "" {
		return nil, ErrTenantNotFound
	}

	var cached Config
	hit, err := r.cache.Get(destinationID, &cached)
	if err != nil {
		log.Warnf("[TenantResolver] cache read for %s failed: %v", destinationID, err)
	}
	if hit {
		return &cached, nil
	}

	integration, err := r.repo.GetActiveIntegrationByDestination(ctx, destinationID)
	if err != nil {
		return nil, notFound(err, "integration")
	}

	team, err := r.repo.GetTeam(ctx, integration.TeamID)
	if err != nil {
		return nil, notFound(err, "team")
	}
	if !team.IsActive {
		return nil, ErrTenantNotFound
	}

	projects, err := r.repo.GetActiveProjects(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("load projects for team %d: %w", team.ID, err)
	}
	if len(projects) == 0 {
		return nil, ErrTenantNotFound
	}
	if len(projects) > 1 {
		log.Warnf("[TenantResolver] team %d has %d active projects, using project %d", team.ID, len(projects), projects[0].ID)
	}
	project := projects[0]

	cfg := &Config{
		TenantID:                team.ID,
		TeamID:                  team.ID,
		ProjectID:               project.ID,
		IntegrationID:           integration.ID,
		DownstreamIntegrationID: project.DownstreamIntegrationID,
		Settings: Settings{
			ReplyEnabled: project.ReplyEnabled,
			ReplyMessages: ReplyMessages{
				Received: project.ReplyReceivedText,
				NoMatch:  project.ReplyNoMatchText,
			},
		},
	}

	if err := r.cache.Set(destinationID, cfg); err != nil {
		log.Warnf("[TenantResolver] cache write for %s failed: %v", destinationID, err)
	}
	return cfg, nil
}

// Invalidate drops the cached resolution for one destination
func (r *Resolver) Invalidate(destinationID string) error {
	return r.cache.Invalidate(destinationID)
}

// Clear drops every cached resolution
func (r *Resolver) Clear() error {
	return r.cache.Clear()
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTenantNotFound
	}
	return fmt.Errorf("load %s: %w", what, err)
}
