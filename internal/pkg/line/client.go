package line

import (
	"bytes"
	"context"
	"encoding/json"
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
	defaultAPIBaseURL     = "https://api.line.me"
	defaultDataAPIBaseURL = "https://api-data.line.me"

	// LINE caps text messages at 5000 characters
	maxReplyRunes = 5000
)

// Error is a non-2xx answer from the LINE platform
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line api error: status=%d message=%s", e.StatusCode, e.Message)
}

type Config struct {
	APIBaseURL     string        `validate:"required,url"`
	DataAPIBaseURL string        `validate:"required,url"`
	Timeout        time.Duration `validate:"gt=0"`
}

func LoadConfig() (Config, error) {
	cfg := Config{
		APIBaseURL:     strings.TrimRight(env.GetEnv("LINE_API_BASE_URL", defaultAPIBaseURL), "/"),
		DataAPIBaseURL: strings.TrimRight(env.GetEnv("LINE_DATA_API_BASE_URL", defaultDataAPIBaseURL), "/"),
		Timeout:        env.GetEnvDuration("LINE_TIMEOUT", 10*time.Second),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid line config: %w", err)
	}
	return cfg, nil
}

// Client talks to the Messaging API (replies) and the data API (content)
type Client struct {
	APIBaseURL     string
	DataAPIBaseURL string

	HTTPClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		APIBaseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		DataAPIBaseURL: strings.TrimRight(cfg.DataAPIBaseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

// Reply answers a webhook event with a single text message. Reply tokens are
// single use and expire quickly, so callers treat errors as best effort.
func (c *Client) Reply(ctx context.Context, accessToken, replyToken, text string) error {
	if replyToken == "" {
		return fmt.Errorf("reply token is empty")
	}
	if r := []rune(text); len(r) > maxReplyRunes {
		text = string(r[:maxReplyRunes])
	}

	payload, err := json.Marshal(replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v2/bot/message/reply", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("line reply request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return nil
}

// Content streams the binary of a media message. The caller closes the body.
func (c *Client) Content(ctx context.Context, accessToken, messageID string) (io.ReadCloser, string, error) {
	if messageID == "" {
		return nil, "", fmt.Errorf("message id is empty")
	}
	url := fmt.Sprintf("%s/v2/bot/message/%s/content", c.DataAPIBaseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.fetch(req)
}

// FetchExternal downloads media LINE reports as hosted elsewhere
func (c *Client) FetchExternal(ctx context.Context, url string) (io.ReadCloser, string, error) {
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil, "", fmt.Errorf("unsupported content url %q", url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	return c.fetch(req)
}

func (c *Client) fetch(req *http.Request) (io.ReadCloser, string, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("line content request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, "", readError(resp)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	log.Debugf("[LINE] fetched %s (%s, %d bytes)", req.URL.Path, contentType, resp.ContentLength)
	return resp.Body, contentType, nil
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &out) == nil && out.Message != "" {
		msg = out.Message
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}
