package structure

import (
	"context"

	models "filetree/internal/domain/models/structure"
)

// NodeRepository defines data access operations for structure nodes
type NodeRepository interface {
	// Create inserts a node; ID and CreatedAt are filled in on return
	Create(ctx context.Context, node *models.Node) error

	// GetByID retrieves a node by ID (domain.ErrNotFound if absent)
	GetByID(ctx context.Context, id string) (*models.Node, error)

	// ListAll returns every node ordered by the type string ascending (file
	// before folder), then name
	ListAll(ctx context.Context) ([]models.Node, error)

	// ListChildren returns the immediate children of parentID (nil = root level),
	// ordered by type descending (folder before file), then name
	ListChildren(ctx context.Context, parentID *string) ([]models.Node, error)

	// Update persists the mutable fields (name, type) of a node. Retyping a node
	// that has children to file returns a *domain.ConflictError.
	Update(ctx context.Context, node *models.Node) error

	// DeleteIfChildless removes a node only when it has no children.
	// Returns a *domain.ConflictError when children exist.
	DeleteIfChildless(ctx context.Context, id string) error

	// ListLinks returns the (id, parent_id, owner_id) projection of the whole table
	ListLinks(ctx context.Context) ([]models.NodeLink, error)
}
