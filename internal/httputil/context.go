package httputil

import (
	"context"
	"net/http"

	"filetree/internal/domain/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	requesterKey contextKey = "requester"
)

// WithRequester adds the authenticated requester to the request context
func WithRequester(r *http.Request, requester *models.Requester) *http.Request {
	ctx := context.WithValue(r.Context(), requesterKey, requester)
	return r.WithContext(ctx)
}

// GetRequester retrieves the requester from context, nil if not authenticated
func GetRequester(r *http.Request) *models.Requester {
	requester, _ := r.Context().Value(requesterKey).(*models.Requester)
	return requester
}

// GetUserID returns the requester's user id, empty string if not authenticated
func GetUserID(r *http.Request) string {
	if requester := GetRequester(r); requester != nil {
		return requester.UserID
	}
	return ""
}
