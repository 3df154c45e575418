package structure

import "time"

// TreeNode is a node with its nested children.
// Permissions is only set on per-user trees.
type TreeNode struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Type        NodeType      `json:"type"`
	ParentID    *string       `json:"parent_id"`
	FilePath    *string       `json:"file_path"`
	OwnerID     *string       `json:"owner_id"`
	CreatedAt   time.Time     `json:"created_at"`
	Permissions *Capabilities `json:"permissions,omitempty"`
	Children    []*TreeNode   `json:"children"`
}

// AnnotatedNode is a node carrying the requester's effective permissions
type AnnotatedNode struct {
	Node
	Permissions *Capabilities `json:"permissions,omitempty"`
}
