package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filetree/internal/domain"
	"filetree/internal/domain/models"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSVerifier implements TokenVerifier using public keys from a JWKS endpoint.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	logger *slog.Logger
}

// NewJWKSVerifier creates a verifier that fetches public keys from jwksURL.
// The keys are cached and refreshed by keyfunc based on HTTP cache headers.
func NewJWKSVerifier(ctx context.Context, jwksURL string, logger *slog.Logger) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)

	return &JWKSVerifier{
		jwks:   jwks,
		logger: logger,
	}, nil
}

// VerifyToken validates a token signed with one of the JWKS keys.
func (v *JWKSVerifier) VerifyToken(tokenString string) (*models.Claims, error) {
	// Only asymmetric algorithms; an HS256 token must never be checked against a public key
	return parseClaims(tokenString, v.jwks.Keyfunc, []string{"RS256", "ES256"}, v.logger)
}

// Close is a no-op; keyfunc v3 manages its own refresh goroutine lifetime through ctx.
func (v *JWKSVerifier) Close() error {
	v.logger.Info("JWT verifier closed")
	return nil
}

// parseClaims is shared by both verifiers
func parseClaims(tokenString string, keyFunc jwt.Keyfunc, algs []string, logger *slog.Logger) (*models.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.Claims{}, keyFunc, jwt.WithValidMethods(algs))
	if err != nil {
		logger.Debug("token parse failed", "error", err.Error())
		return nil, domain.ErrUnauthorized
	}

	if !token.Valid {
		logger.Debug("token is invalid after parsing")
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*models.Claims)
	if !ok {
		logger.Error("failed to extract claims from token")
		return nil, domain.ErrUnauthorized
	}

	// sub carries the requester id
	if claims.Subject == "" {
		logger.Debug("token missing subject claim")
		return nil, domain.ErrUnauthorized
	}

	return claims, nil
}
