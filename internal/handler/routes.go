package handler

import "net/http"

// Handlers groups every HTTP handler the server mounts
type Handlers struct {
	Structure  *StructureHandler
	Permission *PermissionHandler
	Health     *HealthHandler
}

// RegisterRoutes mounts the API on mux using Go 1.22+ method patterns
func RegisterRoutes(mux *http.ServeMux, h Handlers) {
	if h.Health != nil {
		mux.HandleFunc("GET /health", h.Health.HealthCheck)
	}

	// Structure routes
	mux.HandleFunc("GET /api/structure", h.Structure.GetTree)
	mux.HandleFunc("POST /api/structure", h.Structure.CreateNode)
	mux.HandleFunc("GET /api/structure/children", h.Structure.GetChildren)
	mux.HandleFunc("GET /api/structure/{id}/children", h.Structure.GetChildren)
	mux.HandleFunc("PATCH /api/structure/{id}", h.Structure.UpdateNode)
	mux.HandleFunc("DELETE /api/structure/{id}", h.Structure.DeleteNode)
	mux.HandleFunc("POST /api/structure/files", h.Structure.UploadFile)

	// Permission routes
	mux.HandleFunc("POST /api/permissions", h.Permission.Grant)
	mux.HandleFunc("DELETE /api/permissions/{id}", h.Permission.Revoke)
	mux.HandleFunc("GET /api/folders/{id}/permissions", h.Permission.ListForFolder)
	mux.HandleFunc("GET /api/folders/{id}/users", h.Permission.ListUsersWithPermissions)

	// User directory
	mux.HandleFunc("GET /api/users", h.Permission.ListUsers)
}
