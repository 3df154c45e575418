package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	svc "filetree/internal/domain/services/structure"
	"filetree/internal/httputil"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory
// before spilling to a temp file
const multipartMemory = 8 << 20

// multipartOverhead allows room for boundaries and form fields on top of the file
const multipartOverhead = 1 << 20

// StructureHandler handles node and tree HTTP requests
type StructureHandler struct {
	service        svc.StructureService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewStructureHandler creates a new structure handler
func NewStructureHandler(service svc.StructureService, maxUploadBytes int64, logger *slog.Logger) *StructureHandler {
	return &StructureHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// GetTree returns the nested tree visible to the requester
// GET /api/structure
func (h *StructureHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	requester, ok := viewer(w, r)
	if !ok {
		return
	}

	tree, err := h.service.GetTree(r.Context(), requester)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, tree)
}

// GetChildren lists one level of the tree
// GET /api/structure/{id}/children, GET /api/structure/children for the root level
func (h *StructureHandler) GetChildren(w http.ResponseWriter, r *http.Request) {
	requester, ok := viewer(w, r)
	if !ok {
		return
	}

	var parentID *string
	if id := r.PathValue("id"); id != "" {
		parentID = &id
	}

	children, err := h.service.GetChildren(r.Context(), parentID, requester)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, children)
}

// CreateNode creates a file or folder
// POST /api/structure
func (h *StructureHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req svc.CreateNodeRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		h.respondBadBody(w, r, err)
		return
	}

	node, err := h.service.CreateNode(r.Context(), &req, httputil.GetRequester(r))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, node)
}

// UpdateNode renames or retypes a node
// PATCH /api/structure/{id}
func (h *StructureHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Node")
	if !ok {
		return
	}

	var req svc.UpdateNodeRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		h.respondBadBody(w, r, err)
		return
	}

	node, err := h.service.UpdateNode(r.Context(), id, &req, httputil.GetRequester(r))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, node)
}

// DeleteNode deletes a file or an empty folder
// DELETE /api/structure/{id}
func (h *StructureHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Node")
	if !ok {
		return
	}

	if err := h.service.DeleteNode(r.Context(), id, httputil.GetRequester(r)); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadFile accepts a multipart form with a `parent_id` field, an optional
// `name` field and one `file` part.
// POST /api/structure/files
func (h *StructureHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.RespondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		httputil.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer func() { _ = file.Close() }()

	name := r.FormValue("name")
	if name == "" {
		name = filepath.Base(header.Filename)
	}

	uploaded, err := h.service.UploadFile(r.Context(), &svc.UploadFileRequest{
		ParentID:    r.FormValue("parent_id"),
		Name:        name,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}, httputil.GetRequester(r))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, uploaded)
}

func (h *StructureHandler) respondBadBody(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		httputil.RespondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	h.logger.Debug("invalid request body", "path", r.URL.Path, "error", err)
	httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
}
