package structure

import (
	"time"
)

// NodeType is the kind of a structure entry
type NodeType string

const (
	NodeTypeFile   NodeType = "file"
	NodeTypeFolder NodeType = "folder"
)

// Valid reports whether t is one of the known node types
func (t NodeType) Valid() bool {
	return t == NodeTypeFile || t == NodeTypeFolder
}

// Node is a file or folder entry in the structure table.
// ParentID == nil means root level; files always have a parent.
type Node struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Type      NodeType  `json:"type" db:"type"`
	ParentID  *string   `json:"parent_id" db:"parent_id"`
	FilePath  *string   `json:"file_path" db:"file_path"`
	OwnerID   *string   `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsFolder reports whether the node is a folder
func (n *Node) IsFolder() bool {
	return n.Type == NodeTypeFolder
}

// IsOwnedBy reports whether userID is the recorded owner of the node.
// Unowned nodes are never owned by anyone.
func (n *Node) IsOwnedBy(userID string) bool {
	return n.OwnerID != nil && userID != "" && *n.OwnerID == userID
}

// NodeLink is the minimal (id, parent, owner) projection used for reachability
// and ancestor walks over a full-table snapshot.
type NodeLink struct {
	ID       string
	ParentID *string
	OwnerID  *string
}

// UploadedFile is a file node registered from an upload, with the blob's metadata
type UploadedFile struct {
	Node
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}
