package line

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(Config{APIBaseURL: url, DataAPIBaseURL: url, Timeout: 5 * time.Second})
}

func TestReplySendsSingleTextMessage(t *testing.T) {
	var got replyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/bot/message/reply", r.URL.Path)
		assert.Equal(t, "Bearer channel-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Reply(context.Background(), "channel-token", "reply-1", "Saved!")
	require.NoError(t, err)
	assert.Equal(t, "reply-1", got.ReplyToken)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, textMessage{Type: "text", Text: "Saved!"}, got.Messages[0])
}

func TestReplyTruncatesLongText(t *testing.T) {
	var got replyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).Reply(context.Background(), "t", "r", strings.Repeat("あ", 6000)))
	assert.Equal(t, maxReplyRunes, len([]rune(got.Messages[0].Text)))
}

func TestReplyErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	err := c.Reply(context.Background(), "t", "expired", "hi")
	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, http.StatusBadRequest, lerr.StatusCode)
	assert.Equal(t, "Invalid reply token", lerr.Message)

	assert.Error(t, c.Reply(context.Background(), "t", "", "hi"))
}

func TestContentStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/message/msg-9/content", r.URL.Path)
		assert.Equal(t, "Bearer channel-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("binary"))
	}))
	defer srv.Close()

	body, contentType, err := newTestClient(srv.URL).Content(context.Background(), "channel-token", "msg-9")
	require.NoError(t, err)
	defer body.Close()
	data, _ := io.ReadAll(body)
	assert.Equal(t, "binary", string(data))
	assert.Equal(t, "image/jpeg", contentType)
}

func TestContentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := newTestClient(srv.URL).Content(context.Background(), "t", "msg-9")
	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, http.StatusNotFound, lerr.StatusCode)
}

func TestFetchExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "no channel token leaks to third parties")
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	body, contentType, err := c.FetchExternal(context.Background(), srv.URL+"/cat.png")
	require.NoError(t, err)
	body.Close()
	assert.NotEmpty(t, contentType)

	_, _, err = c.FetchExternal(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}
