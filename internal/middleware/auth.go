package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// IsBcryptHash reports whether s looks like a bcrypt hash rather than a plain key
func IsBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// APIKeyAuth creates middleware for API key authentication.
// apiKey is either the key itself or a bcrypt hash of it.
// WebSocket upgrades may pass the key as ?api_key=.
func APIKeyAuth(apiKey, headerName string) func(http.Handler) http.Handler {
	hashed := IsBcryptHash(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if isPublicPath(path) {
				next.ServeHTTP(w, r)
				return
			}

			// Only authenticate API and WebSocket routes
			isWS := strings.HasPrefix(path, "/ws")
			if !strings.HasPrefix(path, "/api") && !isWS {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" && isWS {
				providedKey = r.URL.Query().Get("api_key")
			}
			if providedKey == "" {
				unauthorized(w, "API key is required.")
				return
			}

			var valid bool
			if hashed {
				valid = bcrypt.CompareHashAndPassword([]byte(apiKey), []byte(providedKey)) == nil
			} else {
				valid = constantTimeEquals(apiKey, providedKey)
			}
			if !valid {
				unauthorized(w, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPublicPath(path string) bool {
	switch {
	case path == "/health", path == "/api/health", path == "/api/version", path == "/metrics":
		return true
	case strings.HasPrefix(path, "/swagger"):
		return true
	}
	return false
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// constantTimeEquals performs a constant-time string comparison
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
