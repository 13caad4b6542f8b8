package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Invalidator drops resolver and credential cache entries together, so a
// rotated channel secret is picked up on the next delivery.
type Invalidator struct {
	resolver *Resolver
	secrets  *Secrets
}

func NewInvalidator(resolver *Resolver, secrets *Secrets) *Invalidator {
	return &Invalidator{resolver: resolver, secrets: secrets}
}

// Invalidate drops the cached resolution for destinationID and the channel
// credentials of every integration it points at, cached or stored.
func (i *Invalidator) Invalidate(ctx context.Context, destinationID string) error {
	ids := make(map[uint]struct{})

	var cached Config
	if hit, err := i.resolver.cache.Get(destinationID, &cached); err != nil {
		log.Warnf("[TenantResolver] cache read for %s failed: %v", destinationID, err)
	} else if hit && cached.IntegrationID != 0 {
		ids[cached.IntegrationID] = struct{}{}
	}

	var lookupErr error
	integration, err := i.resolver.repo.GetActiveIntegrationByDestination(ctx, destinationID)
	switch {
	case err == nil:
		ids[integration.ID] = struct{}{}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		lookupErr = fmt.Errorf("look up integration for %s: %w", destinationID, err)
	}

	for id := range ids {
		if err := i.secrets.Invalidate(id); err != nil {
			return fmt.Errorf("invalidate credentials for integration %d: %w", id, err)
		}
	}
	if err := i.resolver.Invalidate(destinationID); err != nil {
		return err
	}
	return lookupErr
}

// InvalidateIntegration drops cached channel credentials for one integration
func (i *Invalidator) InvalidateIntegration(integrationID uint) error {
	return i.secrets.Invalidate(integrationID)
}

// Clear drops every cached resolution and credential
func (i *Invalidator) Clear() error {
	if err := i.resolver.Clear(); err != nil {
		return err
	}
	return i.secrets.Clear()
}
