package auth

import "filetree/internal/domain/models"

// TokenVerifier validates bearer tokens.
// The middleware stays agnostic to how keys are obtained.
type TokenVerifier interface {
	// VerifyToken validates a JWT string and returns the parsed claims.
	// Returns domain.ErrUnauthorized if the token is invalid, expired, or has an invalid signature.
	VerifyToken(tokenString string) (*models.Claims, error)

	// Close releases any resources held by the verifier (e.g., HTTP connections for JWKS).
	Close() error
}
