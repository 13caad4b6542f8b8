package rehost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

var ErrTooLarge = errors.New("media exceeds the re-host size limit")

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client uploads chat media to S3 and hands back a public URL
type Client struct {
	s3Client objectPutter
	config   *Config
}

// NewClient creates a new re-host client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("media re-hosting is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	log.Infof("[Rehost] Initialized S3 client for bucket: %s", cfg.BucketName)
	return &Client{s3Client: s3Client, config: cfg}, nil
}

// Upload buffers body up to the size limit and stores it under key. The same
// key always maps to the same object, so a retried job overwrites its
// previous upload.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, c.config.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read media: %w", err)
	}
	if int64(len(data)) > c.config.MaxBytes {
		return "", fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.config.MaxBytes)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"upload-source": "chatfox-rehost",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	url := c.config.ObjectURL(key)
	log.Infof("[Rehost] Uploaded s3://%s/%s (%d bytes)", c.config.BucketName, key, len(data))
	return url, nil
}
