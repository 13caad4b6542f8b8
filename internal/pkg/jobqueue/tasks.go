package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/downstream"
)

var ErrUnsupportedEvent = errors.New("unsupported event type")

// Property names added by media tasks on top of the rule projection
const (
	PropertyImage    = "Image"
	PropertySource   = "Source"
	PropertyLocation = "Location"
	PropertyMap      = "Map"
)

// ContentFetcher downloads message media
type ContentFetcher interface {
	Content(ctx context.Context, accessToken, messageID string) (io.ReadCloser, string, error)
	FetchExternal(ctx context.Context, url string) (io.ReadCloser, string, error)
}

// Uploader re-hosts a binary and returns its public URL
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// CredentialSource resolves the LINE channel token for content downloads
type CredentialSource interface {
	AccessToken(ctx context.Context, integrationID uint) (string, error)
}

// TaskDeps are the collaborators a task may need to build its write
type TaskDeps struct {
	Content     ContentFetcher
	Uploader    Uploader
	Credentials CredentialSource
}

// Task turns a job payload into a downstream write. The set of tasks is
// closed: every event type maps to exactly one implementation in NewTask.
type Task interface {
	Build(ctx context.Context, deps TaskDeps) (downstream.Write, error)
	task()
}

type TextTask struct{ Payload Payload }
type ImageTask struct{ Payload Payload }
type LocationTask struct{ Payload Payload }

func (TextTask) task()     {}
func (ImageTask) task()    {}
func (LocationTask) task() {}

// NewTask selects the task for an event type
func NewTask(eventType models.JobEventType, p Payload) (Task, error) {
	switch eventType {
	case models.JobEventText:
		return TextTask{Payload: p}, nil
	case models.JobEventImage:
		return ImageTask{Payload: p}, nil
	case models.JobEventLocation:
		return LocationTask{Payload: p}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, eventType)
}

func baseWrite(p Payload) downstream.Write {
	return downstream.Write{
		IntegrationID: p.DownstreamIntegrationID,
		DestinationID: p.DatabaseID,
		Properties:    p.Properties.Clone(),
	}
}

// Build passes the rule projection through unchanged
func (t TextTask) Build(_ context.Context, _ TaskDeps) (downstream.Write, error) {
	return baseWrite(t.Payload), nil
}

// Build downloads the image, re-hosts it and links it from the record
func (t ImageTask) Build(ctx context.Context, deps TaskDeps) (downstream.Write, error) {
	p := t.Payload
	if deps.Content == nil || deps.Uploader == nil {
		return downstream.Write{}, errors.New("image re-hosting is not configured")
	}

	var (
		body        io.ReadCloser
		contentType string
		err         error
		source      string
	)
	if p.Content != nil && p.Content.Provider == ContentProviderExternal && p.Content.OriginalContentURL != "" {
		source = p.Content.OriginalContentURL
		body, contentType, err = deps.Content.FetchExternal(ctx, source)
	} else {
		var token string
		token, err = deps.Credentials.AccessToken(ctx, p.IntegrationID)
		if err != nil {
			return downstream.Write{}, fmt.Errorf("resolve channel token: %w", err)
		}
		body, contentType, err = deps.Content.Content(ctx, token, p.MessageID)
	}
	if err != nil {
		return downstream.Write{}, fmt.Errorf("fetch image %s: %w", p.MessageID, err)
	}
	defer body.Close()

	// keyed by message id so a retry overwrites instead of duplicating
	key := fmt.Sprintf("line/%d/%s%s", p.TenantID, p.MessageID, extensionFor(contentType))
	url, err := deps.Uploader.Upload(ctx, key, body, contentType)
	if err != nil {
		return downstream.Write{}, fmt.Errorf("re-host image %s: %w", p.MessageID, err)
	}
	if source == "" {
		source = url
	}

	w := baseWrite(p)
	w.Properties[PropertyImage] = downstream.Files(url)
	w.Properties[PropertySource] = downstream.URL(source)
	return w, nil
}

// Build adds a readable location line and a map link
func (t LocationTask) Build(_ context.Context, _ TaskDeps) (downstream.Write, error) {
	p := t.Payload
	if p.Location == nil {
		return downstream.Write{}, errors.New("location payload is missing")
	}
	loc := p.Location
	lat := strconv.FormatFloat(loc.Latitude, 'f', -1, 64)
	lng := strconv.FormatFloat(loc.Longitude, 'f', -1, 64)

	var parts []string
	for _, s := range []string{loc.Title, loc.Address} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	text := fmt.Sprintf("(%s, %s)", lat, lng)
	if len(parts) > 0 {
		text = strings.Join(parts, ", ") + " " + text
	}

	w := baseWrite(p)
	w.Properties[PropertyLocation] = downstream.RichText(text)
	w.Properties[PropertyMap] = downstream.URL("https://www.google.com/maps?q=" + lat + "," + lng)
	return w, nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
