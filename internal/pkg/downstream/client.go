package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://api.notion.com"
	defaultAPIVersion = "2022-06-28"
)

// Write is one record to create in a tenant's database
type Write struct {
	IntegrationID uint       `json:"integration_id"`
	DestinationID string     `json:"destination_id"`
	Properties    Properties `json:"properties"`
}

// Result describes the outcome of a write attempt
type Result struct {
	Success    bool   `json:"success"`
	PageID     string `json:"page_id,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Error is returned for non-2xx responses so callers can branch on the status
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("downstream write failed: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("downstream write failed: status=%d body=%s", e.StatusCode, e.Message)
}

// Retryable reports whether the status suggests a later attempt may succeed
func (e *Error) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusCodeOf extracts the HTTP status carried by err, 0 when there is none
func StatusCodeOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return 0
}

// TokenSource resolves the bearer token for a downstream integration
type TokenSource interface {
	DownstreamToken(ctx context.Context, downstreamIntegrationID uint) (string, error)
}

// Writer creates records downstream
type Writer interface {
	Create(ctx context.Context, w Write) (Result, error)
}

type Config struct {
	BaseURL    string        `validate:"required,url"`
	APIVersion string        `validate:"required"`
	Timeout    time.Duration `validate:"gt=0"`
}

func LoadConfig() (Config, error) {
	cfg := Config{
		BaseURL:    strings.TrimRight(strings.TrimSpace(env.GetEnv("DOWNSTREAM_API_BASE_URL", defaultAPIBaseURL)), "/"),
		APIVersion: strings.TrimSpace(env.GetEnv("DOWNSTREAM_API_VERSION", defaultAPIVersion)),
		Timeout:    env.GetEnvDuration("DOWNSTREAM_TIMEOUT", 15*time.Second),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid downstream config: %w", err)
	}
	return cfg, nil
}

type Client struct {
	BaseURL    string
	APIVersion string
	Tokens     TokenSource

	HTTPClient *http.Client
}

func NewClient(cfg Config, tokens TokenSource) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		APIVersion: cfg.APIVersion,
		Tokens:     tokens,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type pageRequest struct {
	Parent     map[string]string      `json:"parent"`
	Properties map[string]interface{} `json:"properties"`
}

type pageResponse struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Create posts a new page into the database named by w.DestinationID
func (c *Client) Create(ctx context.Context, w Write) (Result, error) {
	if strings.TrimSpace(w.DestinationID) == "" {
		return Result{Error: "destination id is required"}, errors.New("destination id is required")
	}
	token, err := c.Tokens.DownstreamToken(ctx, w.IntegrationID)
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("resolve downstream token: %w", err)
	}

	props := make(map[string]interface{}, len(w.Properties))
	for name, p := range w.Properties {
		if r := p.render(); r != nil {
			props[name] = r
		}
	}
	payload, err := json.Marshal(pageRequest{
		Parent:     map[string]string{"database_id": w.DestinationID},
		Properties: props,
	})
	if err != nil {
		return Result{Error: err.Error()}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/pages", bytes.NewReader(payload))
	if err != nil {
		return Result{Error: err.Error()}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Notion-Version", c.APIVersion)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("downstream request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out pageResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		derr := &Error{StatusCode: resp.StatusCode, Code: out.Code, Message: out.Message}
		if derr.Message == "" {
			derr.Message = string(body)
		}
		log.Warnf("[Downstream] create page in %s failed after %s: %v", w.DestinationID, time.Since(start), derr)
		return Result{Error: derr.Error(), StatusCode: resp.StatusCode}, derr
	}

	log.Debugf("[Downstream] created page %s in %s", out.ID, w.DestinationID)
	return Result{Success: true, PageID: out.ID, StatusCode: resp.StatusCode}, nil
}
