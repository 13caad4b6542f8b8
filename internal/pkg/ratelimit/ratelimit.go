package ratelimit

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Store performs the fixed-window step atomically across replicas: start a
// window with count 1 when none is live, reject when count >= max, otherwise
// increment. It returns the count after the step and the time left in the
// window.
type Store interface {
	Hit(ctx context.Context, key string, max int, window time.Duration) (count int, ttl time.Duration, allowed bool, err error)
}

type Config struct {
	Max    int           `validate:"gt=0"`
	Window time.Duration `validate:"gt=0"`
}

// LoadConfig reads the limit from maxKey and the window from RATE_LIMIT_WINDOW
func LoadConfig(maxKey string, defMax int) (Config, error) {
	cfg := Config{
		Max:    env.GetEnvInt(maxKey, defMax),
		Window: env.GetEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type Limiter struct {
	store  Store
	cfg    Config
	prefix string
	now    func() time.Time
}

// New creates a limiter whose keys are "ratelimit:<scope>:<identity>". With a
// nil store the windows live in this process only and Middleware falls back to
// fiber's limiter.
func New(store Store, scope string, cfg Config) *Limiter {
	return &Limiter{store: store, cfg: cfg, prefix: "ratelimit:" + scope + ":", now: time.Now}
}

// Shared reports whether windows are shared between replicas
func (l *Limiter) Shared() bool {
	return l.store != nil
}

// NewStoreFromEnv returns the Redis store, or nil when CACHE_DRIVER=memory
func NewStoreFromEnv() Store {
	if cache.UsesMemory() {
		return nil
	}
	return NewRedisStore(cache.GetClient())
}

// Allow counts one request for identity against the shared store. Storage
// errors and a missing store fail open.
func (l *Limiter) Allow(ctx context.Context, identity string) Decision {
	now := l.now()
	if l.store == nil {
		return Decision{Allowed: true, Limit: l.cfg.Max, Remaining: l.cfg.Max, ResetAt: now.Add(l.cfg.Window)}
	}
	count, ttl, allowed, err := l.store.Hit(ctx, l.prefix+identity, l.cfg.Max, l.cfg.Window)
	if err != nil {
		log.Warnf("[RateLimit] store unavailable, allowing %s: %v", identity, err)
		return Decision{
			Allowed:   true,
			Limit:     l.cfg.Max,
			Remaining: l.cfg.Max,
			ResetAt:   now.Add(l.cfg.Window),
		}
	}

	remaining := l.cfg.Max - count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   allowed,
		Limit:     l.cfg.Max,
		Remaining: remaining,
		ResetAt:   now.Add(ttl),
	}
	if !allowed {
		d.RetryAfter = ttl
	}
	return d
}
