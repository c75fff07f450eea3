package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// ModeAPIKey enables key checking.
const ModeAPIKey = "apikey"

// APIKey returns a middleware that enforces API key authentication on every
// request it wraps.
func APIKey(mode, header, key string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		// Non-apikey modes or unconfigured key → allow everything.
		if mode != ModeAPIKey || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				unauthorized(w, "missing api key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				unauthorized(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
