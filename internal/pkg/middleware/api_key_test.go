package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOperatorApp(raw string) *fiber.App {
	app := fiber.New()
	app.Get("/ops", OperatorAuth(ParseOperatorKeys(raw)), func(c *fiber.Ctx) error {
		return c.SendString(OperatorName(c))
	})
	return app
}

func TestOperatorAuth(t *testing.T) {
	app := newOperatorApp("alice:secret-a, secret-b")

	cases := []struct {
		name   string
		header string
		value  string
		status int
		body   string
	}{
		{"missing", "", "", fiber.StatusUnauthorized, ""},
		{"wrong key", "X-API-Key", "nope", fiber.StatusUnauthorized, ""},
		{"named key", "X-API-Key", "secret-a", fiber.StatusOK, "alice"},
		{"bearer default name", "Authorization", "Bearer secret-b", fiber.StatusOK, "operator"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ops", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.body != "" {
				buf := make([]byte, 64)
				n, _ := resp.Body.Read(buf)
				assert.Equal(t, tc.body, string(buf[:n]))
			}
		})
	}
}

func TestOperatorAuthWithNoKeysRejectsEverything(t *testing.T) {
	app := newOperatorApp("")
	req := httptest.NewRequest("GET", "/ops", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
