package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireToken checks the bearer token when one is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ingestToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := extractToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.ingestToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
