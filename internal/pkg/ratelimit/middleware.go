package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ChatFox/internal/pkg/middleware"
)

const (
	headerLimit     = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
)

// Identity keys callers by a credential fingerprint when one is presented,
// otherwise by client address.
func Identity(c *fiber.Ctx) string {
	if key := middleware.ExtractAPIKey(c); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:])[:16]
	}
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return "ip:" + first
		}
	}
	return "ip:" + c.IP()
}

// Middleware enforces the limiter and sets X-RateLimit-* headers. A limiter
// without a shared store is served by fiber's fixed window limiter.
func Middleware(l *Limiter) fiber.Handler {
	if !l.Shared() {
		return localMiddleware(l)
	}
	return func(c *fiber.Ctx) error {
		d := l.Allow(c.UserContext(), Identity(c))

		c.Set(headerLimit, strconv.Itoa(d.Limit))
		c.Set(headerRemaining, strconv.Itoa(d.Remaining))
		c.Set(headerReset, strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return rejected(c, retry)
		}
		return c.Next()
	}
}

// localMiddleware keeps windows in this process. fiber reports the reset as
// seconds from now; it is rewritten to epoch seconds like the shared path.
func localMiddleware(l *Limiter) fiber.Handler {
	handler := limiter.New(limiter.Config{
		Max:               l.cfg.Max,
		Expiration:        l.cfg.Window,
		LimiterMiddleware: limiter.FixedWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return l.prefix + Identity(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			retry, err := strconv.Atoi(c.GetRespHeader(fiber.HeaderRetryAfter))
			if err != nil || retry < 1 {
				retry = 1
				c.Set(fiber.HeaderRetryAfter, "1")
			}
			c.Set(headerLimit, strconv.Itoa(l.cfg.Max))
			c.Set(headerRemaining, "0")
			c.Set(headerReset, strconv.Itoa(retry))
			return rejected(c, retry)
		},
	})

	return func(c *fiber.Ctx) error {
		err := handler(c)
		if secs, perr := strconv.ParseInt(c.GetRespHeader(headerReset), 10, 64); perr == nil {
			c.Set(headerReset, strconv.FormatInt(l.now().Unix()+secs, 10))
		}
		return err
	}
}

func rejected(c *fiber.Ctx, retry int) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       "rate_limited",
		"message":     "Too many requests",
		"retry_after": retry,
	})
}
