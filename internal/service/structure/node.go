package structure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"filetree/internal/domain"
	"filetree/internal/domain/models"
	structModels "filetree/internal/domain/models/structure"
	structureRepo "filetree/internal/domain/repositories/structure"
	"filetree/internal/domain/services"
	svc "filetree/internal/domain/services/structure"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Options tunes listing and upload behavior
type Options struct {
	// IncludeAncestors keeps non-viewable ancestors of accessible nodes in
	// per-user listings as path segments
	IncludeAncestors bool

	// MaxUploadBytes bounds UploadFile request sizes
	MaxUploadBytes int64
}

// structureService implements the StructureService interface
type structureService struct {
	nodeRepo structureRepo.NodeRepository
	resolver services.AccessResolver
	blobs    services.BlobStore
	opts     Options
	logger   *slog.Logger
}

// NewStructureService creates a new structure service. blobs may be nil when
// uploads are disabled; file_path cleanup is then skipped.
func NewStructureService(
	nodeRepo structureRepo.NodeRepository,
	resolver services.AccessResolver,
	blobs services.BlobStore,
	opts Options,
	logger *slog.Logger,
) svc.StructureService {
	return &structureService{
		nodeRepo: nodeRepo,
		resolver: resolver,
		blobs:    blobs,
		opts:     opts,
		logger:   logger,
	}
}

// CreateNode creates a folder or file node owned by the requester
func (s *structureService) CreateNode(ctx context.Context, req *svc.CreateNodeRequest, requester *models.Requester) (*structModels.Node, error) {
	in := *req
	in.ParentID = normalizeParent(req.ParentID)
	if err := validateCreateRequest(&in); err != nil {
		return nil, err
	}
	if err := requireRequester(requester); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		if err := s.requireOnParent(ctx, *in.ParentID, requester, structModels.ActionCreate); err != nil {
			return nil, err
		}
	}

	owner := requester.UserID
	node := &structModels.Node{
		Name:     strings.TrimSpace(in.Name),
		Type:     in.Type,
		ParentID: in.ParentID,
		FilePath: in.FilePath,
		OwnerID:  &owner,
	}
	if err := s.nodeRepo.Create(ctx, node); err != nil {
		return nil, err
	}

	s.logger.Info("node created",
		"id", node.ID,
		"name", node.Name,
		"type", node.Type,
		"parent_id", node.ParentID,
		"owner_id", requester.UserID,
	)

	return node, nil
}

// UpdateNode renames or retypes a node
func (s *structureService) UpdateNode(ctx context.Context, id string, req *svc.UpdateNodeRequest, requester *models.Requester) (*structModels.Node, error) {
	if err := validateUpdateRequest(req); err != nil {
		return nil, err
	}
	if err := requireRequester(requester); err != nil {
		return nil, err
	}

	node, err := s.nodeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireUnlessOwner(ctx, node, requester, structModels.ActionEdit); err != nil {
		return nil, err
	}

	// Nothing to change
	if req.Name == nil && req.Type == nil {
		return node, nil
	}

	if req.Name != nil {
		node.Name = strings.TrimSpace(*req.Name)
	}
	if req.Type != nil {
		if *req.Type == structModels.NodeTypeFile && node.ParentID == nil {
			return nil, domain.NewValidationError("file must be inside a folder")
		}
		node.Type = *req.Type
	}

	if err := s.nodeRepo.Update(ctx, node); err != nil {
		return nil, err
	}

	s.logger.Info("node updated",
		"id", node.ID,
		"name", node.Name,
		"type", node.Type,
	)

	return node, nil
}

// DeleteNode removes a childless node and then its blob, best-effort
func (s *structureService) DeleteNode(ctx context.Context, id string, requester *models.Requester) error {
	if err := requireRequester(requester); err != nil {
		return err
	}

	node, err := s.nodeRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireUnlessOwner(ctx, node, requester, structModels.ActionDelete); err != nil {
		return err
	}

	if err := s.nodeRepo.DeleteIfChildless(ctx, id); err != nil {
		return err
	}

	if node.FilePath != nil && *node.FilePath != "" {
		s.removeBlob(ctx, *node.FilePath, node.ID)
	}

	s.logger.Info("node deleted",
		"id", node.ID,
		"name", node.Name,
		"type", node.Type,
		"user_id", requester.UserID,
	)

	return nil
}

// GetTree returns the full tree, or the requester's filtered and annotated view
func (s *structureService) GetTree(ctx context.Context, requester *models.Requester) ([]*structModels.TreeNode, error) {
	nodes, err := s.nodeRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	if requester == nil {
		return BuildTree(nodes, nil), nil
	}

	visible, err := s.resolver.GetVisibleNodeIDs(ctx, requester.UserID, s.opts.IncludeAncestors)
	if err != nil {
		return nil, err
	}

	filtered := filterNodes(nodes, visible)
	perms, err := s.resolver.EffectivePermissions(ctx, requester.UserID, nodeIDs(filtered))
	if err != nil {
		return nil, err
	}

	tree := BuildTree(filtered, perms)

	s.logger.Debug("tree built",
		"user_id", requester.UserID,
		"total_nodes", len(nodes),
		"visible_nodes", len(filtered),
	)

	return tree, nil
}

// GetChildren lists one level, filtered like GetTree
func (s *structureService) GetChildren(ctx context.Context, parentID *string, requester *models.Requester) ([]structModels.AnnotatedNode, error) {
	parentID = normalizeParent(parentID)
	if parentID != nil {
		if _, err := s.nodeRepo.GetByID(ctx, *parentID); err != nil {
			return nil, err
		}
	}

	children, err := s.nodeRepo.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}

	if requester == nil {
		out := make([]structModels.AnnotatedNode, 0, len(children))
		for _, c := range children {
			out = append(out, structModels.AnnotatedNode{Node: c})
		}
		return out, nil
	}

	visible, err := s.resolver.GetVisibleNodeIDs(ctx, requester.UserID, s.opts.IncludeAncestors)
	if err != nil {
		return nil, err
	}

	filtered := filterNodes(children, visible)
	perms, err := s.resolver.EffectivePermissions(ctx, requester.UserID, nodeIDs(filtered))
	if err != nil {
		return nil, err
	}

	out := make([]structModels.AnnotatedNode, 0, len(filtered))
	for _, c := range filtered {
		caps := perms[c.ID]
		out = append(out, structModels.AnnotatedNode{Node: c, Permissions: &caps})
	}
	return out, nil
}

// UploadFile stores the body as a blob and registers a file node pointing at it
func (s *structureService) UploadFile(ctx context.Context, req *svc.UploadFileRequest, requester *models.Requester) (*structModels.UploadedFile, error) {
	if s.blobs == nil {
		return nil, errors.New("upload storage is not configured")
	}
	if err := validateUploadRequest(req, s.opts.MaxUploadBytes); err != nil {
		return nil, err
	}
	if err := requireRequester(requester); err != nil {
		return nil, err
	}
	if err := s.requireOnParent(ctx, req.ParentID, requester, structModels.ActionUpload); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	body, contentType, err := sniffContentType(req.Body, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	key := uuid.NewString() + strings.ToLower(path.Ext(name))
	if err := s.blobs.Put(ctx, key, body, req.Size, contentType); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	parentID, owner := req.ParentID, requester.UserID
	node := &structModels.Node{
		Name:     name,
		Type:     structModels.NodeTypeFile,
		ParentID: &parentID,
		FilePath: &key,
		OwnerID:  &owner,
	}
	if err := s.nodeRepo.Create(ctx, node); err != nil {
		s.removeBlob(ctx, key, "")
		return nil, err
	}

	s.logger.Info("file uploaded",
		"id", node.ID,
		"name", node.Name,
		"parent_id", req.ParentID,
		"file_path", key,
		"size", req.Size,
		"mime_type", contentType,
	)

	return &structModels.UploadedFile{Node: *node, FileSize: req.Size, MimeType: contentType}, nil
}

// requireOnParent checks the parent exists, is a folder, and that the
// requester owns it or holds action on it.
func (s *structureService) requireOnParent(ctx context.Context, parentID string, requester *models.Requester, action structModels.Action) error {
	parent, err := s.nodeRepo.GetByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewNotFoundError(fmt.Sprintf("parent %s not found", parentID))
		}
		return err
	}
	if !parent.IsFolder() {
		return domain.NewValidationError(fmt.Sprintf("parent %s is not a folder", parentID))
	}
	if parent.IsOwnedBy(requester.UserID) {
		return nil
	}
	return s.require(ctx, requester.UserID, parentID, action)
}

// requireUnlessOwner gates nodes whose recorded owner is someone else.
// Nodes without an owner are not gated.
func (s *structureService) requireUnlessOwner(ctx context.Context, node *structModels.Node, requester *models.Requester, action structModels.Action) error {
	if node.OwnerID == nil || node.IsOwnedBy(requester.UserID) {
		return nil
	}
	return s.require(ctx, requester.UserID, node.ID, action)
}

func (s *structureService) require(ctx context.Context, userID, nodeID string, action structModels.Action) error {
	ok, err := s.resolver.CheckUserPermission(ctx, userID, nodeID, action)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewForbiddenError(fmt.Sprintf("%s permission required on %s", action, nodeID))
	}
	return nil
}

// removeBlob deletes a blob; failures are logged and swallowed
func (s *structureService) removeBlob(ctx context.Context, key, nodeID string) {
	if s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to remove blob",
			"file_path", key,
			"node_id", nodeID,
			"error", err,
		)
	}
}

func requireRequester(requester *models.Requester) error {
	if requester == nil || requester.UserID == "" {
		return &domain.UnauthorizedError{Message: "authentication required"}
	}
	return nil
}

func nodeIDs(nodes []structModels.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

// sniffContentType detects the content type from the leading bytes when the
// client sent none and returns a reader that still yields the whole body.
// Seekable bodies are rewound so they stay seekable.
func sniffContentType(body io.Reader, declared string) (io.Reader, string, error) {
	if declared != "" && declared != "application/octet-stream" {
		return body, declared, nil
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", err
	}
	head = head[:n]
	detected := mimetype.Detect(head).String()

	if seeker, ok := body.(io.ReadSeeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, "", err
		}
		return seeker, detected, nil
	}
	return io.MultiReader(bytes.NewReader(head), body), detected, nil
}
