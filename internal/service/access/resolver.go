package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filetree/internal/domain"
	models "filetree/internal/domain/models/structure"
	"filetree/internal/domain/repositories"
	structureRepo "filetree/internal/domain/repositories/structure"
	"filetree/internal/domain/services"
)

// Resolver implements services.AccessResolver with ownership-or-inheritance
// semantics over the ancestor chain.
//
// A node is reachable for an action when the user owns any node on its chain,
// or holds an explicit grant for that action on any node on its chain. Grants
// are additive; nothing overrides them further down.
type Resolver struct {
	nodeRepo  structureRepo.NodeRepository
	grantRepo structureRepo.GrantRepository
	txManager repositories.TransactionManager
	logger    *slog.Logger
}

// NewResolver creates a resolver. When txManager is non-nil every resolution
// runs inside one of its transactions, so a snapshot manager gives each call a
// consistent read of both tables.
func NewResolver(
	nodeRepo structureRepo.NodeRepository,
	grantRepo structureRepo.GrantRepository,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) services.AccessResolver {
	return &Resolver{
		nodeRepo:  nodeRepo,
		grantRepo: grantRepo,
		txManager: txManager,
		logger:    logger,
	}
}

// CheckUserPermission walks nodeID's ancestor chain one hop at a time
func (r *Resolver) CheckUserPermission(ctx context.Context, userID, nodeID string, action models.Action) (bool, error) {
	var allowed bool
	err := r.inTx(ctx, func(ctx context.Context) error {
		chain, err := r.ancestorChain(ctx, nodeID)
		if err != nil {
			return err
		}

		for _, node := range chain {
			if node.IsOwnedBy(userID) {
				allowed = true
				return nil
			}
		}

		// Self first, then outward
		for _, node := range chain {
			ok, err := r.grantRepo.HasCapability(ctx, userID, node.ID, action)
			if err != nil {
				return fmt.Errorf("check grant on %s: %w", node.ID, err)
			}
			if ok {
				allowed = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	r.logger.Debug("permission resolved",
		"user_id", userID,
		"node_id", nodeID,
		"action", action,
		"allowed", allowed,
	)
	return allowed, nil
}

// GetAccessibleNodeIDs seeds with owned nodes and view-granted folders, then
// expands downward over a parent->children index built from one fetch.
func (r *Resolver) GetAccessibleNodeIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	var accessible map[string]struct{}
	err := r.inTx(ctx, func(ctx context.Context) error {
		snap, err := r.snapshot(ctx, userID)
		if err != nil {
			return err
		}
		accessible = snap.accessible()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accessible, nil
}

// GetVisibleNodeIDs expands the accessible set upward over the same snapshot
func (r *Resolver) GetVisibleNodeIDs(ctx context.Context, userID string, includeAncestors bool) (map[string]struct{}, error) {
	var visible map[string]struct{}
	err := r.inTx(ctx, func(ctx context.Context) error {
		snap, err := r.snapshot(ctx, userID)
		if err != nil {
			return err
		}
		visible = snap.accessible()
		if includeAncestors {
			visible = snap.withAncestors(visible)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return visible, nil
}

// EffectivePermissions resolves all actions for many nodes from one snapshot
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string, nodeIDs []string) (map[string]models.Capabilities, error) {
	result := make(map[string]models.Capabilities, len(nodeIDs))
	err := r.inTx(ctx, func(ctx context.Context) error {
		snap, err := r.snapshot(ctx, userID)
		if err != nil {
			return err
		}
		for _, id := range nodeIDs {
			result[id] = snap.capabilities(id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ancestorChain returns the node itself followed by its ancestors up to a
// root. A missing start node yields an empty chain; a repeated id stops the
// walk.
func (r *Resolver) ancestorChain(ctx context.Context, nodeID string) ([]*models.Node, error) {
	var chain []*models.Node
	visited := make(map[string]struct{})

	current := &nodeID
	for current != nil {
		if _, seen := visited[*current]; seen {
			r.logger.Warn("cycle in node hierarchy", "node_id", nodeID, "repeated_id", *current)
			break
		}
		visited[*current] = struct{}{}

		node, err := r.nodeRepo.GetByID(ctx, *current)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("load ancestor %s: %w", *current, err)
		}
		chain = append(chain, node)
		current = node.ParentID
	}

	return chain, nil
}

func (r *Resolver) snapshot(ctx context.Context, userID string) (*snapshot, error) {
	links, err := r.nodeRepo.ListLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load node links: %w", err)
	}
	grants, err := r.grantRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user grants: %w", err)
	}
	return newSnapshot(userID, links, grants), nil
}

func (r *Resolver) inTx(ctx context.Context, fn repositories.TxFn) error {
	if r.txManager == nil {
		return fn(ctx)
	}
	return r.txManager.ExecTx(ctx, fn)
}
