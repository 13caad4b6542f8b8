package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/memory"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

// Cache is a typed, prefixed view over a fiber.Storage. Values are stored as
// JSON and expire after ttl.
type Cache struct {
	storage fiber.Storage
	prefix  string
	ttl     time.Duration
}

func New(storage fiber.Storage, prefix string, ttl time.Duration) *Cache {
	return &Cache{storage: storage, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// Get decodes the cached value into dest. A miss returns false with no error.
func (c *Cache) Get(key string, dest interface{}) (bool, error) {
	raw, err := c.storage.Get(c.key(key))
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Corrupt entries are dropped so the caller reloads from the source
		_ = c.storage.Delete(c.key(key))
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.storage.Set(c.key(key), raw, c.ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops a single entry
func (c *Cache) Invalidate(key string) error {
	return c.storage.Delete(c.key(key))
}

// Clear resets the whole backing storage. Resolver caches share a dedicated
// Redis database so nothing else is lost.
func (c *Cache) Clear() error {
	return c.storage.Reset()
}

// NewStorage returns the backing storage for resolver caches selected by
// CACHE_DRIVER. Redis uses database 2 (DB 0 holds counters and limits).
func NewStorage() fiber.Storage {
	if UsesMemory() {
		log.Info("[Cache] using in-memory resolver cache")
		return memory.New()
	}

	return redisstorage.New(redisstorage.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     cachePort(),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: env.GetEnvInt("TENANT_CACHE_DB", 2),
		Reset:    false,
	})
}
