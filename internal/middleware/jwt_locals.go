package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
)

// ClaimKey is the Locals key holding the verified auth.Claim.
const ClaimKey = "claim"

// ClaimFrom returns the claim stored by RequireAuth.
func ClaimFrom(c *fiber.Ctx) (auth.Claim, error) {
	claim, ok := c.Locals(ClaimKey).(auth.Claim)
	if !ok {
		return auth.Claim{}, apperr.Unauthorized("not authenticated")
	}
	return claim, nil
}
