package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"filetree/internal/domain"
	"filetree/internal/domain/models"
	"filetree/internal/httputil"
)

// handleError converts domain errors to HTTP responses.
// Unclassified errors are logged and reported as a bare 500.
func handleError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var conflictErr *domain.ConflictError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesErr):
		httputil.RespondError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &conflictErr):
		httputil.RespondErrorWithExtras(w, http.StatusConflict, conflictErr.Error(), map[string]any{
			"resource_type": conflictErr.ResourceType,
			"resource_id":   conflictErr.ResourceID,
		})
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", httputil.GetUserID(r),
			"error", err,
		)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// viewer returns the requester a listing is filtered for.
// Admins get nil, the unfiltered view.
func viewer(w http.ResponseWriter, r *http.Request) (*models.Requester, bool) {
	requester := httputil.GetRequester(r)
	if requester == nil {
		httputil.RespondError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	if requester.IsAdmin() {
		return nil, true
	}
	return requester, true
}

// pathID reads the {id} wildcard
func pathID(w http.ResponseWriter, r *http.Request, what string) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, what+" ID is required")
		return "", false
	}
	return id, true
}
