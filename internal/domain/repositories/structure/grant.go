package structure

import (
	"context"

	models "filetree/internal/domain/models/structure"
)

// GrantRepository defines data access operations for permission grants
type GrantRepository interface {
	// Upsert inserts or updates the single grant for (FolderID, UserID).
	// ID and UpdatedAt are filled in on return.
	Upsert(ctx context.Context, grant *models.Grant) error

	// GetByID retrieves a grant by ID (domain.ErrNotFound if absent)
	GetByID(ctx context.Context, id string) (*models.Grant, error)

	// Get retrieves the grant for (folderID, userID) (domain.ErrNotFound if absent)
	Get(ctx context.Context, folderID, userID string) (*models.Grant, error)

	// Delete removes a grant by ID (domain.ErrNotFound if absent)
	Delete(ctx context.Context, id string) error

	// HasCapability returns the flag mapped to action on the (folderID, userID) row.
	// Missing rows and unmapped actions yield false.
	HasCapability(ctx context.Context, userID, folderID string, action models.Action) (bool, error)

	// ListByFolder returns the grants of a folder joined with the grantee identity
	ListByFolder(ctx context.Context, folderID string) ([]models.GrantWithUser, error)

	// ListByUser returns every grant held by a user
	ListByUser(ctx context.Context, userID string) ([]models.Grant, error)

	// ListUsersWithPermissions returns every directory user with their flags on folderID
	ListUsersWithPermissions(ctx context.Context, folderID string) ([]models.UserPermissions, error)
}
