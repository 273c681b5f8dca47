// Package repository is the document store: typed reads and the multi-row
// writes of the marketplace, each multi-row write inside one gorm transaction.
package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the handle for health checks and tests.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// postgres / sqlite
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint")
}

// translate maps store errors onto the error taxonomy. Errors that already
// belong to the taxonomy pass through untouched.
func translate(err error, entity string) error {
	if err == nil {
		return nil
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(entity + " not found")
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, entity+" already exists", err)
	default:
		return apperr.Internal("database error", err)
	}
}

// forUpdate adds a row lock where the dialect has one. SQLite serializes
// writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
