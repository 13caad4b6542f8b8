package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the shared Redis client (DB 0) used for rate
// limiting and metrics counters.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache: %v", err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// UsesMemory reports whether CACHE_DRIVER selects the in-process backends
func UsesMemory() bool {
	return env.GetEnv("CACHE_DRIVER", "redis") == "memory"
}

func cachePort() int {
	p, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		return 6379
	}
	return p
}
