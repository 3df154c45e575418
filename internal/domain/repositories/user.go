package repositories

import (
	"context"

	"filetree/internal/domain/models"
)

// UserRepository is the read side of the user directory plus seeding
type UserRepository interface {
	// List returns every known user ordered by name
	List(ctx context.Context) ([]models.User, error)

	// GetByID retrieves a user (domain.ErrNotFound if absent)
	GetByID(ctx context.Context, id string) (*models.User, error)

	// Upsert creates or updates a user keyed by ID
	Upsert(ctx context.Context, user *models.User) error
}
