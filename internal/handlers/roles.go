package handlers

import (
	"log/slog"
	"net/http"
)

// RequireRole allows the request through only when the authenticated role is
// in roles. It must run after RequireAuth; a request without an identity is
// an internal fault and is logged to logger.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := identityFromContext(r.Context())
			if err != nil {
				logger.Error("role check without identity", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusInternalServerError, "Internal Server Error: "+err.Error())
				return
			}

			if _, ok := allowed[identity.Role]; !ok {
				writeError(w, http.StatusForbidden, "access denied: insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
