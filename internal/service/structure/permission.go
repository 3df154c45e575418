package structure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filetree/internal/domain"
	"filetree/internal/domain/models"
	structModels "filetree/internal/domain/models/structure"
	"filetree/internal/domain/repositories"
	structureRepo "filetree/internal/domain/repositories/structure"
	"filetree/internal/domain/services"
	svc "filetree/internal/domain/services/structure"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// permissionService implements the PermissionService interface
type permissionService struct {
	nodeRepo  structureRepo.NodeRepository
	grantRepo structureRepo.GrantRepository
	userRepo  repositories.UserRepository
	resolver  services.AccessResolver
	logger    *slog.Logger
}

// NewPermissionService creates a new permission service
func NewPermissionService(
	nodeRepo structureRepo.NodeRepository,
	grantRepo structureRepo.GrantRepository,
	userRepo repositories.UserRepository,
	resolver services.AccessResolver,
	logger *slog.Logger,
) svc.PermissionService {
	return &permissionService{
		nodeRepo:  nodeRepo,
		grantRepo: grantRepo,
		userRepo:  userRepo,
		resolver:  resolver,
		logger:    logger,
	}
}

// Grant upserts the grantee's flags; a second grant replaces all five flags
func (s *permissionService) Grant(ctx context.Context, req *svc.GrantRequest, grantor *models.Requester) (*structModels.Grant, error) {
	if err := s.validateGrantRequest(req); err != nil {
		return nil, err
	}
	if err := requireRequester(grantor); err != nil {
		return nil, err
	}

	folder, err := s.nodeRepo.GetByID(ctx, req.FolderID)
	if err != nil {
		return nil, err
	}
	if err := s.requireGrantor(ctx, folder, grantor); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetByID(ctx, req.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewNotFoundError(fmt.Sprintf("user %s not found", req.UserID))
		}
		return nil, err
	}

	grant := &structModels.Grant{
		FolderID:     req.FolderID,
		UserID:       req.UserID,
		Capabilities: req.Capabilities,
		GrantedBy:    grantor.UserID,
	}
	if err := s.grantRepo.Upsert(ctx, grant); err != nil {
		return nil, err
	}

	s.logger.Info("permission granted",
		"id", grant.ID,
		"folder_id", grant.FolderID,
		"user_id", grant.UserID,
		"granted_by", grant.GrantedBy,
		"can_view", grant.CanView,
		"can_edit", grant.CanEdit,
		"can_delete", grant.CanDelete,
		"can_create", grant.CanCreate,
		"can_upload", grant.CanUpload,
	)

	return grant, nil
}

// Revoke deletes a grant. Grants whose folder no longer exists can only be
// revoked by the user who last granted them.
func (s *permissionService) Revoke(ctx context.Context, grantID string, requester *models.Requester) error {
	if err := requireRequester(requester); err != nil {
		return err
	}

	grant, err := s.grantRepo.GetByID(ctx, grantID)
	if err != nil {
		return err
	}

	folder, err := s.nodeRepo.GetByID(ctx, grant.FolderID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if grant.GrantedBy != requester.UserID {
			return domain.NewForbiddenError("you are not allowed to revoke this permission")
		}
	case err != nil:
		return err
	default:
		if err := s.requireGrantor(ctx, folder, requester); err != nil {
			return err
		}
	}

	if err := s.grantRepo.Delete(ctx, grantID); err != nil {
		return err
	}

	s.logger.Info("permission revoked",
		"id", grantID,
		"folder_id", grant.FolderID,
		"user_id", grant.UserID,
		"revoked_by", requester.UserID,
	)

	return nil
}

// ListForFolder requires view on the folder
func (s *permissionService) ListForFolder(ctx context.Context, folderID string, requester *models.Requester) ([]structModels.GrantWithUser, error) {
	if err := s.requireView(ctx, folderID, requester); err != nil {
		return nil, err
	}
	return s.grantRepo.ListByFolder(ctx, folderID)
}

// ListUsersWithPermissions requires view on the folder
func (s *permissionService) ListUsersWithPermissions(ctx context.Context, folderID string, requester *models.Requester) ([]structModels.UserPermissions, error) {
	if err := s.requireView(ctx, folderID, requester); err != nil {
		return nil, err
	}
	return s.grantRepo.ListUsersWithPermissions(ctx, folderID)
}

// ListUsers returns the user directory
func (s *permissionService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.userRepo.List(ctx)
}

// requireGrantor allows the folder owner or anyone holding edit on it
func (s *permissionService) requireGrantor(ctx context.Context, folder *structModels.Node, requester *models.Requester) error {
	if folder.IsOwnedBy(requester.UserID) {
		return nil
	}
	ok, err := s.resolver.CheckUserPermission(ctx, requester.UserID, folder.ID, structModels.ActionEdit)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewForbiddenError("you are not allowed to change permissions on this folder")
	}
	return nil
}

// requireView checks the folder exists and the requester may view it.
// A nil requester is the unfiltered administrative view.
func (s *permissionService) requireView(ctx context.Context, folderID string, requester *models.Requester) error {
	folder, err := s.nodeRepo.GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if requester == nil || folder.IsOwnedBy(requester.UserID) {
		return nil
	}
	ok, err := s.resolver.CheckUserPermission(ctx, requester.UserID, folderID, structModels.ActionView)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewForbiddenError("view permission required on " + folderID)
	}
	return nil
}

func (s *permissionService) validateGrantRequest(req *svc.GrantRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.FolderID, validation.Required),
		validation.Field(&req.UserID, validation.Required),
	)
	return asValidationError(err)
}
