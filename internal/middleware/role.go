package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
)

func RequireRoles(allowed ...models.Role) fiber.Handler {
	allowedSet := map[models.Role]bool{}
	for _, r := range allowed {
		allowedSet[models.Role(strings.ToLower(string(r)))] = true
	}

	return func(c *fiber.Ctx) error {
		claim, err := ClaimFrom(c)
		if err != nil {
			return err
		}
		if !allowedSet[claim.Role] {
			return apperr.Forbidden("forbidden: insufficient role")
		}
		return c.Next()
	}
}
