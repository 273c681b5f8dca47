package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
)

const TokenCookie = "fm_token"

// RequireAuth verifies the bearer token (Authorization header, then the
// fm_token cookie) and stores the claim in Locals.
func RequireAuth(v *auth.Verifier) fiber.Handler {
	return verify(v, false)
}

// RequireAuthQuery also accepts ?token=, for websocket upgrades where
// browsers cannot set headers.
func RequireAuthQuery(v *auth.Verifier) fiber.Handler {
	return verify(v, true)
}

func verify(v *auth.Verifier, allowQuery bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := tokenFrom(c, allowQuery)
		if tokenStr == "" {
			return apperr.Unauthorized("missing token")
		}

		claim, err := v.Verify(tokenStr)
		if err != nil {
			return apperr.Unauthorized("invalid or expired token")
		}

		c.Locals(ClaimKey, claim)
		return c.Next()
	}
}

func tokenFrom(c *fiber.Ctx, allowQuery bool) string {
	if h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization)); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if t := c.Cookies(TokenCookie); t != "" {
		return t
	}
	if allowQuery {
		return c.Query("token")
	}
	return ""
}
