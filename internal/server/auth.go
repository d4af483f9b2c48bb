package server

import (
	"net/http"
	"strings"
)

// sessionToken reads the player's token from the Authorization header, or
// from the token query parameter for EventSource and WebSocket clients that
// cannot set headers.
func sessionToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}
