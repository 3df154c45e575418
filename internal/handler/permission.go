package handler

import (
	"log/slog"
	"net/http"

	svc "filetree/internal/domain/services/structure"
	"filetree/internal/httputil"
)

// PermissionHandler handles grant and user directory HTTP requests
type PermissionHandler struct {
	service svc.PermissionService
	logger  *slog.Logger
}

// NewPermissionHandler creates a new permission handler
func NewPermissionHandler(service svc.PermissionService, logger *slog.Logger) *PermissionHandler {
	return &PermissionHandler{
		service: service,
		logger:  logger,
	}
}

// Grant creates or replaces a user's capabilities on a folder
// POST /api/permissions
func (h *PermissionHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req svc.GrantRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	grant, err := h.service.Grant(r.Context(), &req, httputil.GetRequester(r))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, grant)
}

// Revoke deletes a grant
// DELETE /api/permissions/{id}
func (h *PermissionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Permission")
	if !ok {
		return
	}

	if err := h.service.Revoke(r.Context(), id, httputil.GetRequester(r)); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListForFolder lists a folder's grants with grantee names
// GET /api/folders/{id}/permissions
func (h *PermissionHandler) ListForFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Folder")
	if !ok {
		return
	}
	requester, ok := viewer(w, r)
	if !ok {
		return
	}

	grants, err := h.service.ListForFolder(r.Context(), id, requester)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, grants)
}

// ListUsersWithPermissions lists every user with their flags on a folder
// GET /api/folders/{id}/users
func (h *PermissionHandler) ListUsersWithPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Folder")
	if !ok {
		return
	}
	requester, ok := viewer(w, r)
	if !ok {
		return
	}

	users, err := h.service.ListUsersWithPermissions(r.Context(), id, requester)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, users)
}

// ListUsers returns the user directory
// GET /api/users
func (h *PermissionHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, users)
}
