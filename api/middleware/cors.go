package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS applies the allowed-origin policy. The origin list is the union of
// every tenant's origin patterns plus any configured extras; the storefront
// browsers are the only expected cross-origin callers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:8000"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Signature", "X-Timestamp", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
