package ratelimit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/internal/pkg/testutil"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

type fakeWindow struct {
	count     int
	expiresAt time.Time
}

// windowStore follows the Redis script step by step on a fake clock
type windowStore struct {
	now     func() time.Time
	windows map[string]*fakeWindow
}

func (s *windowStore) Hit(_ context.Context, key string, max int, ttl time.Duration) (int, time.Duration, bool, error) {
	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		s.windows[key] = &fakeWindow{count: 1, expiresAt: now.Add(ttl)}
		return 1, ttl, true, nil
	}
	left := w.expiresAt.Sub(now)
	if w.count >= max {
		return w.count, left, false, nil
	}
	w.count++
	return w.count, left, true, nil
}

func newSharedLimiter(max int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := &windowStore{now: clock.now, windows: make(map[string]*fakeWindow)}
	l := New(store, "test", Config{Max: max, Window: window})
	l.now = clock.now
	return l, clock
}

func TestFixedWindow(t *testing.T) {
	l, clock := newSharedLimiter(3, 60*time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := l.Allow(ctx, "ip:10.0.0.1")
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 3-(i+1), d.Remaining)
	}

	clock.t = clock.t.Add(10 * time.Second)
	d := l.Allow(ctx, "ip:10.0.0.1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.LessOrEqual(t, d.RetryAfter, 60*time.Second)
	assert.Equal(t, 50*time.Second, d.RetryAfter)

	// other identities have their own window
	assert.True(t, l.Allow(ctx, "ip:10.0.0.2").Allowed)

	clock.t = clock.t.Add(51 * time.Second)
	d = l.Allow(ctx, "ip:10.0.0.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

type brokenStore struct{}

func (brokenStore) Hit(context.Context, string, int, time.Duration) (int, time.Duration, bool, error) {
	return 0, 0, false, errors.New("connection refused")
}

func TestFailOpen(t *testing.T) {
	l := New(brokenStore{}, "test", Config{Max: 1, Window: time.Minute})
	for i := 0; i < 5; i++ {
		d := l.Allow(context.Background(), "ip:1.2.3.4")
		assert.True(t, d.Allowed)
		assert.Equal(t, 1, d.Limit)
	}
}

func TestMiddlewareHeadersAndRejection(t *testing.T) {
	l, _ := newSharedLimiter(2, time.Minute)
	app := fiber.New()
	app.Get("/", Middleware(l), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	do := func() *http.Response {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	first := do()
	assert.Equal(t, fiber.StatusOK, first.StatusCode)
	assert.Equal(t, "2", first.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, first.Header.Get("X-RateLimit-Reset"))

	assert.Equal(t, fiber.StatusOK, do().StatusCode)

	third := do()
	assert.Equal(t, fiber.StatusTooManyRequests, third.StatusCode)
	assert.Equal(t, "60", third.Header.Get("Retry-After"))
	assert.Equal(t, "0", third.Header.Get("X-RateLimit-Remaining"))
}

func TestLocalMiddlewareUsesFiberLimiter(t *testing.T) {
	l := New(nil, "test", Config{Max: 2, Window: time.Minute})
	require.False(t, l.Shared())

	app := fiber.New()
	app.Get("/", Middleware(l), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	do := func(ip string) *http.Response {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	start := time.Now().Unix()
	first := do("203.0.113.7")
	assert.Equal(t, fiber.StatusOK, first.StatusCode)
	assert.Equal(t, "2", first.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header.Get("X-RateLimit-Remaining"))
	reset, err := strconv.ParseInt(first.Header.Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reset, start)
	assert.LessOrEqual(t, reset, start+61)

	assert.Equal(t, fiber.StatusOK, do("203.0.113.7").StatusCode)

	third := do("203.0.113.7")
	assert.Equal(t, fiber.StatusTooManyRequests, third.StatusCode)
	assert.NotEmpty(t, third.Header.Get("Retry-After"))
	assert.Equal(t, "0", third.Header.Get("X-RateLimit-Remaining"))
	body, err := io.ReadAll(third.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"error":"rate_limited"`)

	// other identities have their own window
	assert.Equal(t, fiber.StatusOK, do("198.51.100.4").StatusCode)
}

func TestAllowWithoutStoreFailsOpen(t *testing.T) {
	l := New(nil, "test", Config{Max: 1, Window: time.Minute})
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(context.Background(), "ip:1.2.3.4").Allowed)
	}
}

func TestIdentity(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(Identity(c)) })

	identify := func(headers map[string]string) string {
		req := httptest.NewRequest("GET", "/", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	byHeader := identify(map[string]string{"X-API-Key": "secret"})
	byBearer := identify(map[string]string{"Authorization": "Bearer secret"})
	assert.True(t, strings.HasPrefix(byHeader, "key:"))
	assert.Len(t, byHeader, len("key:")+16)
	assert.Equal(t, byHeader, byBearer)
	assert.NotContains(t, byHeader, "secret")

	assert.Equal(t, "ip:198.51.100.4", identify(map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"}))
	assert.True(t, strings.HasPrefix(identify(nil), "ip:"))
}

func TestRedisStoreFixedWindow(t *testing.T) {
	client := testutil.NewRedisClient(t, 13)
	store := NewRedisStore(client)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, ttl, allowed, err := store.Hit(ctx, "ratelimit:test:ip:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
		assert.LessOrEqual(t, ttl, time.Minute)
	}

	count, ttl, allowed, err := store.Hit(ctx, "ratelimit:test:ip:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 3, count)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, client.PExpire(ctx, "ratelimit:test:ip:1", 10*time.Millisecond).Err())
	time.Sleep(30 * time.Millisecond)
	count, _, allowed, err = store.Hit(ctx, "ratelimit:test:ip:1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, count)
}
