package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"filetree/internal/auth"
	"filetree/internal/domain/models"
	"filetree/internal/httputil"
)

// publicPaths skip authentication
var publicPaths = map[string]bool{
	"/health": true,
}

// AuthMiddleware verifies the bearer token and stores the requester in the
// request context. The core trusts the requester verbatim.
func AuthMiddleware(verifier auth.TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.Debug("rejected token", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			requester := &models.Requester{UserID: claims.GetUserID(), Role: claims.Role}
			next.ServeHTTP(w, httputil.WithRequester(r, requester))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
