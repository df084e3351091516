package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/gofiber/fiber/v2"
)

// Context keys and cookie names of an admin session
const (
	AdminIDKey = "adminID"
	AdminKey   = "admin"

	AccessTokenCookie  = "jwt"
	RefreshTokenCookie = "refresh_token"
)

// Authenticator resolves an access token to the admin it was issued to
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.Admin, error)
}

// RequireAdmin accepts the access token from the jwt cookie or an Authorization: Bearer header
func RequireAdmin(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(AccessTokenCookie)
		if tokenString == "" {
			authHeader := c.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "You are not logged in",
			})
		}

		admin, err := auth.Authenticate(c.UserContext(), tokenString)
		if err != nil {
			status := fiber.StatusUnauthorized
			msg := "Invalid or expired token"
			switch {
			case errors.Is(err, domain.ErrForbidden):
				status, msg = fiber.StatusForbidden, "Account is disabled"
			case !errors.Is(err, domain.ErrTokenInvalid):
				status, msg = fiber.StatusInternalServerError, "internal server error"
			}
			return c.Status(status).JSON(fiber.Map{"error": msg})
		}

		c.Locals(AdminIDKey, admin.ID)
		c.Locals(AdminKey, admin)
		return c.Next()
	}
}

// CurrentAdmin returns the admin stored by RequireAdmin, or nil
func CurrentAdmin(c *fiber.Ctx) *domain.Admin {
	admin, _ := c.Locals(AdminKey).(*domain.Admin)
	return admin
}
