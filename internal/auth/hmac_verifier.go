package auth

import (
	"context"
	"errors"
	"log/slog"

	"filetree/internal/config"
	"filetree/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
)

// HMACVerifier verifies HS256 tokens against a shared secret.
// Used in development and tests where no JWKS endpoint exists.
type HMACVerifier struct {
	secret []byte
	logger *slog.Logger
}

// NewHMACVerifier creates a shared-secret verifier
func NewHMACVerifier(secret string, logger *slog.Logger) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &HMACVerifier{secret: []byte(secret), logger: logger}, nil
}

// VerifyToken validates an HS256 token
func (v *HMACVerifier) VerifyToken(tokenString string) (*models.Claims, error) {
	return parseClaims(tokenString, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, []string{"HS256"}, v.logger)
}

// Close implements TokenVerifier
func (v *HMACVerifier) Close() error { return nil }

// NewVerifier picks the JWKS verifier when a JWKS URL is configured and
// falls back to the shared secret otherwise.
func NewVerifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (TokenVerifier, error) {
	if cfg.JWKSURL != "" {
		return NewJWKSVerifier(ctx, cfg.JWKSURL, logger)
	}
	logger.Info("JWT verifier initialized", "mode", "hs256")
	return NewHMACVerifier(cfg.JWTSecret, logger)
}
