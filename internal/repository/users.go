package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
)

// CreateUser inserts u. A taken email is reported as a conflict.
func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return translate(r.db.WithContext(ctx).Create(u).Error, "user")
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	return u, translate(err, "user")
}

func (r *Repository) FindUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	return u, translate(err, "user")
}
