package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/models"
	"storefront/internal/services"
)

// AuthRequired is a Fiber middleware to check for a valid JWT token.
// Failures go through the app's error handler as 401s.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fmt.Errorf("authorization header is required: %w", models.ErrUnauthorized)
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return fmt.Errorf("authorization header format must be 'Bearer <token>': %w", models.ErrUnauthorized)
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			return err
		}

		// Store claims in Fiber context for subsequent handlers
		c.Locals("user_id", claims["user_id"])
		c.Locals("username", claims["username"])

		return c.Next()
	}
}
