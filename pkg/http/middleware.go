// Package http exposes the presence hub over WebSocket.
package http

import (
	"net/http"
	"strings"

	"github.com/txn2/presence/pkg/auth"
)

// TokenQueryParam carries an identity assertion for clients that cannot set
// headers on the upgrade request.
const TokenQueryParam = "token"

// TokenMiddleware extracts an identity assertion from the Authorization
// header or the token query parameter and adds it to the request context.
// Requests without one pass through unchanged and must authenticate in-band.
func TokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string

		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if token == "" {
			token = r.URL.Query().Get(TokenQueryParam)
		}

		if token != "" {
			r = r.WithContext(auth.WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}
