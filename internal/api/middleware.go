package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"trigger-console/internal/auth"
)

// AuthMiddleware validates the bearer token and stores the user on the
// request.
func AuthMiddleware(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return UnauthorizedError("Invalid auth header format")
		}

		user, err := svc.Verify(parts[1])
		if err != nil {
			return UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// RequireAdmin rejects authenticated users without the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// GetUser returns the authenticated user, or nil.
func GetUser(c *fiber.Ctx) *auth.User {
	user, _ := c.Locals("user").(*auth.User)
	return user
}

func actor(c *fiber.Ctx) string {
	if u := GetUser(c); u != nil {
		return u.Name
	}
	return ""
}
