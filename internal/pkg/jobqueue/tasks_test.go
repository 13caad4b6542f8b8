package jobqueue

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/downstream"
)

type fakeContent struct {
	lineToken   string
	lineMessage string
	externalURL string
	contentType string
	err         error
}

func (f *fakeContent) Content(_ context.Context, token, messageID string) (io.ReadCloser, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	f.lineToken, f.lineMessage = token, messageID
	return io.NopCloser(bytes.NewReader([]byte("jpeg-bytes"))), f.contentType, nil
}

func (f *fakeContent) FetchExternal(_ context.Context, url string) (io.ReadCloser, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	f.externalURL = url
	return io.NopCloser(bytes.NewReader([]byte("png-bytes"))), f.contentType, nil
}

type fakeUploader struct {
	key         string
	body        string
	contentType string
}

func (f *fakeUploader) Upload(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.key, f.body, f.contentType = key, string(b), contentType
	return "https://cdn.example.com/" + key, nil
}

type staticCredentials map[uint]string

func (s staticCredentials) AccessToken(_ context.Context, id uint) (string, error) {
	if tok, ok := s[id]; ok {
		return tok, nil
	}
	return "", errors.New("no token")
}

func TestNewTaskSelectsByEventType(t *testing.T) {
	p := Payload{MessageID: "m1"}

	task, err := NewTask(models.JobEventText, p)
	require.NoError(t, err)
	assert.IsType(t, TextTask{}, task)

	task, err = NewTask(models.JobEventImage, p)
	require.NoError(t, err)
	assert.IsType(t, ImageTask{}, task)

	task, err = NewTask(models.JobEventLocation, p)
	require.NoError(t, err)
	assert.IsType(t, LocationTask{}, task)

	_, err = NewTask("video", p)
	assert.True(t, errors.Is(err, ErrUnsupportedEvent))
}

func TestTextTaskDoesNotAliasPayload(t *testing.T) {
	p := textPayload(1, "m1")
	w, err := TextTask{Payload: p}.Build(context.Background(), TaskDeps{})
	require.NoError(t, err)

	w.Properties["Extra"] = downstream.RichText("x")
	_, leaked := p.Properties["Extra"]
	assert.False(t, leaked)
	assert.Equal(t, "D1", w.DestinationID)
}

func TestImageTaskRehostsLineContent(t *testing.T) {
	p := textPayload(7, "img-1")
	p.MessageType = models.JobEventImage
	p.IntegrationID = 3
	p.Content = &Content{Provider: ContentProviderLine}

	content := &fakeContent{contentType: "image/jpeg"}
	uploader := &fakeUploader{}
	w, err := ImageTask{Payload: p}.Build(context.Background(), TaskDeps{
		Content:     content,
		Uploader:    uploader,
		Credentials: staticCredentials{3: "line-token"},
	})
	require.NoError(t, err)

	assert.Equal(t, "line-token", content.lineToken)
	assert.Equal(t, "img-1", content.lineMessage)
	assert.Equal(t, "line/7/img-1.jpg", uploader.key)
	assert.Equal(t, "jpeg-bytes", uploader.body)
	assert.Equal(t, "image/jpeg", uploader.contentType)

	assert.Equal(t, downstream.Files("https://cdn.example.com/line/7/img-1.jpg"), w.Properties[PropertyImage])
	assert.Equal(t, downstream.URL("https://cdn.example.com/line/7/img-1.jpg"), w.Properties[PropertySource])
	assert.Equal(t, downstream.Title("img-1"), w.Properties["Name"])
}

func TestImageTaskFetchesExternalContent(t *testing.T) {
	p := textPayload(7, "img-2")
	p.Content = &Content{Provider: ContentProviderExternal, OriginalContentURL: "https://example.org/cat.png"}

	content := &fakeContent{contentType: "image/png"}
	uploader := &fakeUploader{}
	w, err := ImageTask{Payload: p}.Build(context.Background(), TaskDeps{
		Content:     content,
		Uploader:    uploader,
		Credentials: staticCredentials{},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/cat.png", content.externalURL)
	assert.Empty(t, content.lineMessage)
	assert.Equal(t, "line/7/img-2.png", uploader.key)
	assert.Equal(t, downstream.URL("https://example.org/cat.png"), w.Properties[PropertySource])
}

func TestImageTaskErrors(t *testing.T) {
	p := textPayload(7, "img-3")
	ctx := context.Background()

	_, err := ImageTask{Payload: p}.Build(ctx, TaskDeps{})
	assert.Error(t, err)

	_, err = ImageTask{Payload: p}.Build(ctx, TaskDeps{
		Content:     &fakeContent{},
		Uploader:    &fakeUploader{},
		Credentials: staticCredentials{},
	})
	assert.ErrorContains(t, err, "resolve channel token")

	upstream := &downstream.Error{StatusCode: 503, Message: "down"}
	_, err = ImageTask{Payload: p}.Build(ctx, TaskDeps{
		Content:     &fakeContent{err: upstream},
		Uploader:    &fakeUploader{},
		Credentials: staticCredentials{0: "tok"},
	})
	assert.Equal(t, 503, downstream.StatusCodeOf(err), "status survives wrapping")
}

func TestLocationTaskAddsPlaceAndMap(t *testing.T) {
	p := textPayload(1, "loc-1")
	p.Location = &Location{
		Title:     "Tokyo Tower",
		Address:   "4-2-8 Shibakoen, Minato",
		Latitude:  35.6586,
		Longitude: 139.7454,
	}

	w, err := LocationTask{Payload: p}.Build(context.Background(), TaskDeps{})
	require.NoError(t, err)
	assert.Equal(t, downstream.RichText("Tokyo Tower, 4-2-8 Shibakoen, Minato (35.6586, 139.7454)"), w.Properties[PropertyLocation])
	assert.Equal(t, downstream.URL("https://www.google.com/maps?q=35.6586,139.7454"), w.Properties[PropertyMap])

	p.Location = &Location{Latitude: 1.5, Longitude: -2}
	w, err = LocationTask{Payload: p}.Build(context.Background(), TaskDeps{})
	require.NoError(t, err)
	assert.Equal(t, downstream.RichText("(1.5, -2)"), w.Properties[PropertyLocation])

	p.Location = nil
	_, err = LocationTask{Payload: p}.Build(context.Background(), TaskDeps{})
	assert.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".jpg", extensionFor("image/jpeg"))
	assert.Equal(t, ".png", extensionFor("image/png; charset=binary"))
	assert.Equal(t, ".webp", extensionFor("IMAGE/WEBP"))
	assert.Equal(t, "", extensionFor(""))
}
