package rpc

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// requireAuth gates a handler behind an HS256 bearer token when a shared
// secret is configured. Without a secret the handler is passed through
// unchanged.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if len(s.authSecret) == 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}
		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return s.authSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			s.logger.Warn("rejected rpc request", "error", err)
			unauthorized(w, "invalid bearer token")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	return tok, tok != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="workbridge"`)
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
}
