package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

// LocalOperator holds the authenticated operator name
const LocalOperator = "OPERATOR"

// OperatorKey is a named operator credential stored as a SHA-256 digest
type OperatorKey struct {
	name string
	hash [32]byte
}

// ParseOperatorKeys accepts "key" or "name:key" entries separated by commas
func ParseOperatorKeys(raw string) []OperatorKey {
	var keys []OperatorKey
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, key := "operator", part
		if i := strings.Index(part, ":"); i > 0 {
			name, key = part[:i], part[i+1:]
		}
		if key == "" {
			continue
		}
		keys = append(keys, OperatorKey{name: name, hash: sha256.Sum256([]byte(key))})
	}
	return keys
}

// OperatorKeysFromEnv reads OPERATOR_API_KEY
func OperatorKeysFromEnv() []OperatorKey {
	keys := ParseOperatorKeys(env.GetEnv("OPERATOR_API_KEY", ""))
	if len(keys) == 0 {
		log.Warn("[Auth] OPERATOR_API_KEY is empty, operator API is locked")
	}
	return keys
}

// OperatorAuth authenticates requests carrying an operator API key header.
func OperatorAuth(keys []OperatorKey) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := ExtractAPIKey(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		sum := sha256.Sum256([]byte(apiKey))
		for _, k := range keys {
			if subtle.ConstantTimeCompare(sum[:], k.hash[:]) == 1 {
				c.Locals(LocalOperator, k.name)
				return c.Next()
			}
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
	}
}

// OperatorName returns the authenticated operator or "operator"
func OperatorName(c *fiber.Ctx) string {
	if name, ok := c.Locals(LocalOperator).(string); ok && name != "" {
		return name
	}
	return "operator"
}

// ExtractAPIKey reads X-API-Key or a bearer token
func ExtractAPIKey(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
