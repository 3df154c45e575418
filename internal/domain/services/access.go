package services

import (
	"context"

	models "filetree/internal/domain/models/structure"
)

// AccessResolver resolves effective permissions over the node and grant stores.
// It holds no state of its own; structure and permission services both depend on
// it instead of on each other.
type AccessResolver interface {
	// CheckUserPermission reports whether userID may perform action on nodeID.
	// Ownership of any node in the ancestor chain grants everything; otherwise an
	// explicit grant for action on any chain node grants it.
	CheckUserPermission(ctx context.Context, userID, nodeID string, action models.Action) (bool, error)

	// GetAccessibleNodeIDs returns every node the user may at least view: owned
	// nodes, folders with an explicit view grant, and all their descendants.
	GetAccessibleNodeIDs(ctx context.Context, userID string) (map[string]struct{}, error)

	// GetVisibleNodeIDs is GetAccessibleNodeIDs, widened with every ancestor of
	// an accessible node when includeAncestors is set. Both come from one
	// snapshot.
	GetVisibleNodeIDs(ctx context.Context, userID string, includeAncestors bool) (map[string]struct{}, error)

	// EffectivePermissions resolves all five actions for each of nodeIDs from a
	// single snapshot of the stores, with the same chain semantics as
	// CheckUserPermission.
	EffectivePermissions(ctx context.Context, userID string, nodeIDs []string) (map[string]models.Capabilities, error)
}
