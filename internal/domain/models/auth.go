package models

import "github.com/golang-jwt/jwt/v5"

// RoleAdmin marks requesters allowed to list the unfiltered tree
const RoleAdmin = "admin"

// Claims represents the JWT claims issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Email                string `json:"email"`
	Name                 string `json:"name"`
	Role                 string `json:"role"` // "user" or "admin"
}

// GetUserID returns the user ID from the JWT subject claim.
func (c *Claims) GetUserID() string {
	return c.Subject
}

// Requester is the authenticated identity a request acts as.
// The core trusts it verbatim.
type Requester struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the requester has the admin role
func (r *Requester) IsAdmin() bool {
	return r != nil && r.Role == RoleAdmin
}
