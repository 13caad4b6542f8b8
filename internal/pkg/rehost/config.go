package rehost

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

const defaultMaxBytes int64 = 10 << 20

// Config holds the bucket that re-hosts chat media
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string // Optional CDN or public bucket URL
	MaxBytes        int64
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     strings.TrimRight(env.GetEnv("S3_ENDPOINT_URL", ""), "/"),
		PublicBaseURL:   strings.TrimRight(env.GetEnv("S3_PUBLIC_BASE_URL", ""), "/"),
		MaxBytes:        int64(env.GetEnvInt("REHOST_MAX_BYTES", int(defaultMaxBytes))),
		Enabled:         env.GetEnvBool("S3_REHOST_ENABLED", false),
	}

	// Validate required fields if re-hosting is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when re-hosting is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when re-hosting is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when re-hosting is enabled")
		}
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = defaultMaxBytes
	}

	return config, nil
}

// IsEnabled returns true if re-hosting is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectURL returns the public URL of an uploaded object
func (c *Config) ObjectURL(key string) string {
	switch {
	case c.PublicBaseURL != "":
		return c.PublicBaseURL + "/" + key
	case c.EndpointURL != "":
		// path-style, matching the client options
		return fmt.Sprintf("%s/%s/%s", c.EndpointURL, c.BucketName, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.BucketName, c.Region, key)
	}
}
