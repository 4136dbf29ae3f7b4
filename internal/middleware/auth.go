package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/inklift/inklift/internal/logger"
)

// OrgContextKey is where RequireOrg stores the caller's org ID.
const OrgContextKey = "orgID"

// RequireOrg enforces the tenant boundary: every request must carry
// the org it operates in. Authorization beyond org scoping is an
// external collaborator concern.
func RequireOrg() fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID := c.Get("X-Org-ID")
		if orgID == "" {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Request without org header")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "X-Org-ID header is required",
			})
		}

		c.Locals(OrgContextKey, orgID)
		return c.Next()
	}
}

// OrgID returns the org stored by RequireOrg, or "" outside it.
func OrgID(c *fiber.Ctx) string {
	if v, ok := c.Locals(OrgContextKey).(string); ok {
		return v
	}
	return ""
}

// AdminOnly is a middleware that checks if the request is from an admin
func AdminOnly(adminKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Admin access attempt without API key")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key is required",
			})
		}

		if adminKey == "" || apiKey != adminKey {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Unauthorized admin access attempt")

			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		return c.Next()
	}
}
