package chat

import (
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/realtime"
)

func (f fixture) claimOf(c *realtime.Client) auth.Claim {
	role := models.RoleFreelancer
	if c == f.a {
		role = models.RoleClient
	}
	return auth.Claim{ID: c.UserID, Role: role, Username: c.Username}
}
