package structure

import (
	"context"

	"filetree/internal/domain/models"
	structModels "filetree/internal/domain/models/structure"
)

// PermissionService manages grants, gated by the access resolver on the grantor
type PermissionService interface {
	// Grant creates or updates the grantee's capabilities on a folder.
	// The grantor must own the folder or hold `edit` on it.
	Grant(ctx context.Context, req *GrantRequest, grantor *models.Requester) (*structModels.Grant, error)

	// Revoke deletes a grant under the same gate as Grant
	Revoke(ctx context.Context, grantID string, requester *models.Requester) error

	// ListForFolder lists a folder's grants with grantee identity
	ListForFolder(ctx context.Context, folderID string, requester *models.Requester) ([]structModels.GrantWithUser, error)

	// ListUsersWithPermissions lists every user with their flags on a folder
	ListUsersWithPermissions(ctx context.Context, folderID string, requester *models.Requester) ([]structModels.UserPermissions, error)

	// ListUsers lists the user directory
	ListUsers(ctx context.Context) ([]models.User, error)
}

// GrantRequest represents a grant/update request
type GrantRequest struct {
	FolderID string `json:"folder_id"`
	UserID   string `json:"user_id"`
	structModels.Capabilities
}
