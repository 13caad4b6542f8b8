package jobqueue

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

type StoreConfig struct {
	MaxAttempts    int           `validate:"gte=1,lte=100"`
	RetryBaseDelay time.Duration `validate:"gte=0"`
	RetryMaxDelay  time.Duration `validate:"gte=0"`
}

type WorkerConfig struct {
	BatchSize   int           `validate:"gte=1,lte=500"`
	Concurrency int           `validate:"gte=1,lte=64"`
	JobTimeout  time.Duration `validate:"gt=0"`
}

type ManagerConfig struct {
	Interval          time.Duration `validate:"gt=0"`
	StuckAfter        time.Duration `validate:"gt=0"`
	StuckScanInterval time.Duration `validate:"gt=0"`
	PurgeInterval     time.Duration `validate:"gt=0"`
	Retention         time.Duration `validate:"gt=0"`
}

type Config struct {
	Store   StoreConfig
	Worker  WorkerConfig
	Manager ManagerConfig
}

// LoadConfig reads JOB_*, WORKER_* and PROCESSED_EVENT_RETENTION
func LoadConfig() (Config, error) {
	cfg := Config{
		Store: StoreConfig{
			MaxAttempts:    env.GetEnvInt("JOB_MAX_ATTEMPTS", models.DefaultJobMaxAttempts),
			RetryBaseDelay: env.GetEnvDuration("JOB_RETRY_BASE_DELAY", 30*time.Second),
			RetryMaxDelay:  env.GetEnvDuration("JOB_RETRY_MAX_DELAY", 15*time.Minute),
		},
		Worker: WorkerConfig{
			BatchSize:   env.GetEnvInt("WORKER_BATCH_SIZE", 5),
			Concurrency: env.GetEnvInt("WORKER_CONCURRENCY", 5),
			JobTimeout:  env.GetEnvDuration("WORKER_JOB_TIMEOUT", 30*time.Second),
		},
		Manager: ManagerConfig{
			Interval:          env.GetEnvDuration("WORKER_INTERVAL", time.Minute),
			StuckAfter:        env.GetEnvDuration("JOB_STUCK_AFTER", 10*time.Minute),
			StuckScanInterval: time.Minute,
			PurgeInterval:     time.Hour,
			Retention:         env.GetEnvDuration("PROCESSED_EVENT_RETENTION", 30*24*time.Hour),
		},
	}

	v := validator.New()
	for _, part := range []interface{}{cfg.Store, cfg.Worker, cfg.Manager} {
		if err := v.Struct(part); err != nil {
			return Config{}, fmt.Errorf("invalid job queue config: %w", err)
		}
	}
	return cfg, nil
}
