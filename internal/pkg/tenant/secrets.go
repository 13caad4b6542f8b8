package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/repository"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
)

var ErrSecretNotFound = errors.New("credential not found")

type channelCredentials struct {
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
}

// Secrets looks up per-integration credentials behind a cache. It is only
// consulted after the tenant has been resolved.
type Secrets struct {
	repo  repository.TenantRepository
	cache *cache.Cache
}

func NewSecrets(repo repository.TenantRepository, c *cache.Cache) *Secrets {
	return &Secrets{repo: repo, cache: c}
}

// ChannelSecret returns the LINE channel secret used for signatures
func (s *Secrets) ChannelSecret(ctx context.Context, integrationID uint) (string, error) {
	creds, err := s.channel(ctx, integrationID)
	if err != nil {
		return "", err
	}
	if creds.Secret == "" {
		return "", ErrSecretNotFound
	}
	return creds.Secret, nil
}

// AccessToken returns the LINE channel access token for replies and content
func (s *Secrets) AccessToken(ctx context.Context, integrationID uint) (string, error) {
	creds, err := s.channel(ctx, integrationID)
	if err != nil {
		return "", err
	}
	if creds.AccessToken == "" {
		return "", ErrSecretNotFound
	}
	return creds.AccessToken, nil
}

// DownstreamToken returns the record store token for a downstream integration
func (s *Secrets) DownstreamToken(ctx context.Context, downstreamIntegrationID uint) (string, error) {
	key := "downstream:" + strconv.FormatUint(uint64(downstreamIntegrationID), 10)
	var token string
	if hit, err := s.cache.Get(key, &token); err != nil {
		log.Warnf("[TenantResolver] secret cache read failed: %v", err)
	} else if hit && token != "" {
		return token, nil
	}

	di, err := s.repo.GetDownstreamIntegration(ctx, downstreamIntegrationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("load downstream integration %d: %w", downstreamIntegrationID, err)
	}
	if di.AccessToken == "" {
		return "", ErrSecretNotFound
	}
	if err := s.cache.Set(key, di.AccessToken); err != nil {
		log.Warnf("[TenantResolver] secret cache write failed: %v", err)
	}
	return di.AccessToken, nil
}

// Invalidate drops cached channel credentials for an integration
func (s *Secrets) Invalidate(integrationID uint) error {
	return s.cache.Invalidate("line:" + strconv.FormatUint(uint64(integrationID), 10))
}

// Clear drops every cached credential
func (s *Secrets) Clear() error {
	return s.cache.Clear()
}

func (s *Secrets) channel(ctx context.Context, integrationID uint) (channelCredentials, error) {
	key := "line:" + strconv.FormatUint(uint64(integrationID), 10)
	var creds channelCredentials
	if hit, err := s.cache.Get(key, &creds); err != nil {
		log.Warnf("[TenantResolver] secret cache read failed: %v", err)
	} else if hit {
		return creds, nil
	}

	integration, err := s.repo.GetIntegration(ctx, integrationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return channelCredentials{}, ErrSecretNotFound
		}
		return channelCredentials{}, fmt.Errorf("load integration %d: %w", integrationID, err)
	}
	creds = channelCredentials{Secret: integration.ChannelSecret, AccessToken: integration.ChannelAccessToken}
	if err := s.cache.Set(key, creds); err != nil {
		log.Warnf("[TenantResolver] secret cache write failed: %v", err)
	}
	return creds, nil
}
