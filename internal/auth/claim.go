package auth

import (
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
)

// Claim is the verified identity passed explicitly into every operation.
type Claim struct {
	ID       uuid.UUID
	Role     models.Role
	Username string
}

func (c Claim) IsClient() bool     { return c.Role == models.RoleClient }
func (c Claim) IsFreelancer() bool { return c.Role == models.RoleFreelancer }
