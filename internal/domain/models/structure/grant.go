package structure

import "time"

// Action is a capability a user may exercise on a node
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionCreate Action = "create"
	ActionUpload Action = "upload"
)

// AllActions lists every action in annotation order
var AllActions = []Action{ActionView, ActionEdit, ActionDelete, ActionCreate, ActionUpload}

// Capabilities holds the five boolean capability flags of a grant
type Capabilities struct {
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
	CanCreate bool `json:"can_create"`
	CanUpload bool `json:"can_upload"`
}

// Allows returns the flag mapped to action; unmapped actions are never allowed
func (c Capabilities) Allows(action Action) bool {
	switch action {
	case ActionView:
		return c.CanView
	case ActionEdit:
		return c.CanEdit
	case ActionDelete:
		return c.CanDelete
	case ActionCreate:
		return c.CanCreate
	case ActionUpload:
		return c.CanUpload
	default:
		return false
	}
}

// Set turns on the flag mapped to action
func (c *Capabilities) Set(action Action) {
	switch action {
	case ActionView:
		c.CanView = true
	case ActionEdit:
		c.CanEdit = true
	case ActionDelete:
		c.CanDelete = true
	case ActionCreate:
		c.CanCreate = true
	case ActionUpload:
		c.CanUpload = true
	}
}

// FullCapabilities is what an owner effectively holds
func FullCapabilities() Capabilities {
	return Capabilities{CanView: true, CanEdit: true, CanDelete: true, CanCreate: true, CanUpload: true}
}

// Grant is an explicit per-(folder, user) capability row.
// At most one grant exists per (FolderID, UserID).
type Grant struct {
	ID       string `json:"id" db:"id"`
	FolderID string `json:"folder_id" db:"folder_id"`
	UserID   string `json:"user_id" db:"user_id"`
	Capabilities
	GrantedBy string    `json:"granted_by" db:"granted_by"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// GrantWithUser is a grant joined with the grantee's identity for display
type GrantWithUser struct {
	Grant
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// UserPermissions is a directory user annotated with their flags on one folder.
// A missing grant yields all flags false.
type UserPermissions struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Capabilities
}
