package structure

import (
	"context"
	"io"

	"filetree/internal/domain/models"
	structModels "filetree/internal/domain/models/structure"
)

// StructureService orchestrates node mutations and listings with permission checks
type StructureService interface {
	// CreateNode validates and creates a node. When a parent is given and the
	// requester does not own it, the requester needs `create` on the parent.
	CreateNode(ctx context.Context, req *CreateNodeRequest, requester *models.Requester) (*structModels.Node, error)

	// UpdateNode renames or retypes a node. A node with a different recorded
	// owner requires `edit`.
	UpdateNode(ctx context.Context, id string, req *UpdateNodeRequest, requester *models.Requester) (*structModels.Node, error)

	// DeleteNode removes a node after the `delete` gate; folders must be childless
	DeleteNode(ctx context.Context, id string, requester *models.Requester) error

	// GetTree returns the nested tree; nil requester means unfiltered
	GetTree(ctx context.Context, requester *models.Requester) ([]*structModels.TreeNode, error)

	// GetChildren returns one level under parentID (nil = root level); nil
	// requester means unfiltered
	GetChildren(ctx context.Context, parentID *string, requester *models.Requester) ([]structModels.AnnotatedNode, error)

	// UploadFile stores the bytes in the blob store and registers a file node.
	// The requester needs `upload` on the parent unless they own it.
	UploadFile(ctx context.Context, req *UploadFileRequest, requester *models.Requester) (*structModels.UploadedFile, error)
}

// CreateNodeRequest represents a node creation request
type CreateNodeRequest struct {
	Name     string                `json:"name"`
	Type     structModels.NodeType `json:"type"`
	ParentID *string               `json:"parent_id,omitempty"`
	FilePath *string               `json:"file_path,omitempty"`
}

// UpdateNodeRequest represents a rename/retype request; nil fields are left untouched
type UpdateNodeRequest struct {
	Name *string                `json:"name,omitempty"`
	Type *structModels.NodeType `json:"type,omitempty"`
}

// UploadFileRequest carries an uploaded file into the structure
type UploadFileRequest struct {
	ParentID    string
	Name        string
	Size        int64
	ContentType string // sniffed when empty
	Body        io.Reader
}
