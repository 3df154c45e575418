package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"filetree/internal/httputil"
)

// Recovery turns a handler panic into a 500 problem response.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				attrs := []any{
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				}
				if requester := httputil.GetRequester(r); requester != nil {
					attrs = append(attrs, "user_id", requester.UserID, "role", requester.Role)
				}
				logger.Error("handler panicked", attrs...)

				httputil.RespondErrorWithExtras(w, http.StatusInternalServerError, "internal server error",
					map[string]any{"instance": r.URL.Path})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
