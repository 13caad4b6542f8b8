package rehost

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestUploadPutsObjectAndReturnsURL(t *testing.T) {
	fake := &fakeS3{}
	c := &Client{s3Client: fake, config: &Config{
		BucketName:    "media",
		PublicBaseURL: "https://cdn.example.com",
		MaxBytes:      1024,
	}}

	url, err := c.Upload(context.Background(), "line/1/m1.jpg", strings.NewReader("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/line/1/m1.jpg", url)
	assert.Equal(t, "media", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "line/1/m1.jpg", aws.ToString(fake.input.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(fake.input.ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, "jpeg", fake.body)
}

func TestUploadRejectsOversizedMedia(t *testing.T) {
	fake := &fakeS3{}
	c := &Client{s3Client: fake, config: &Config{BucketName: "media", MaxBytes: 3}}

	_, err := c.Upload(context.Background(), "k", strings.NewReader("four"), "")
	assert.True(t, errors.Is(err, ErrTooLarge))
	assert.Nil(t, fake.input, "nothing uploaded")

	_, err = c.Upload(context.Background(), "k", strings.NewReader("abc"), "")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", aws.ToString(fake.input.ContentType))
}

func TestUploadWrapsS3Errors(t *testing.T) {
	c := &Client{s3Client: &fakeS3{err: errors.New("access denied")}, config: &Config{BucketName: "media", MaxBytes: 10}}
	_, err := c.Upload(context.Background(), "k", strings.NewReader("x"), "image/png")
	assert.ErrorContains(t, err, "access denied")
}

func TestObjectURL(t *testing.T) {
	cfg := &Config{BucketName: "media", Region: "eu-central-1"}
	assert.Equal(t, "https://media.s3.eu-central-1.amazonaws.com/a/b.png", cfg.ObjectURL("a/b.png"))

	cfg.EndpointURL = "https://s3.us-west-001.backblazeb2.com"
	assert.Equal(t, "https://s3.us-west-001.backblazeb2.com/media/a/b.png", cfg.ObjectURL("a/b.png"))

	cfg.PublicBaseURL = "https://cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/a/b.png", cfg.ObjectURL("a/b.png"))
}

func TestLoadConfig(t *testing.T) {
	env.Env = map[string]string{"S3_REHOST_ENABLED": "true", "S3_ACCESS_KEY_ID": "id"}
	t.Cleanup(func() { env.Env = nil })

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "S3_SECRET_ACCESS_KEY")

	env.Env["S3_SECRET_ACCESS_KEY"] = "secret"
	env.Env["S3_BUCKET_NAME"] = "media"
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, defaultMaxBytes, cfg.MaxBytes)

	env.Env = map[string]string{}
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())

	_, err = NewClient(context.Background(), cfg)
	assert.Error(t, err)
}
