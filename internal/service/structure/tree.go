package structure

import (
	models "filetree/internal/domain/models/structure"
)

// BuildTree nests a flat node list. A node is a root when it has no parent or
// when its parent is not in the list. Children keep the input order.
// perms may be nil; otherwise each node carries its entry.
func BuildTree(nodes []models.Node, perms map[string]models.Capabilities) []*models.TreeNode {
	// First pass: create all tree nodes
	nodeMap := make(map[string]*models.TreeNode, len(nodes))
	for _, n := range nodes {
		tn := &models.TreeNode{
			ID:        n.ID,
			Name:      n.Name,
			Type:      n.Type,
			ParentID:  n.ParentID,
			FilePath:  n.FilePath,
			OwnerID:   n.OwnerID,
			CreatedAt: n.CreatedAt,
			Children:  []*models.TreeNode{},
		}
		if perms != nil {
			caps := perms[n.ID]
			tn.Permissions = &caps
		}
		nodeMap[n.ID] = tn
	}

	// Second pass: attach children to parents, orphans become roots
	roots := make([]*models.TreeNode, 0)
	for _, n := range nodes {
		tn := nodeMap[n.ID]
		if n.ParentID != nil && *n.ParentID != n.ID {
			if parent, ok := nodeMap[*n.ParentID]; ok {
				parent.Children = append(parent.Children, tn)
				continue
			}
		}
		roots = append(roots, tn)
	}

	return roots
}

// filterNodes keeps nodes in the visible set, preserving order
func filterNodes(nodes []models.Node, visible map[string]struct{}) []models.Node {
	out := make([]models.Node, 0, len(visible))
	for _, n := range nodes {
		if _, ok := visible[n.ID]; ok {
			out = append(out, n)
		}
	}
	return out
}
