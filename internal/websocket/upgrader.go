package websocket

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/websocket"
)

// NewUpgrader builds the HTTP upgrader. With no allowed origins every origin
// is accepted; otherwise the Origin header must match one of them, except for
// localhost origins which are always allowed for development.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || OriginAllowed(origin, allowedOrigins)
		},
	}
}

// OriginAllowed reports whether origin is in allowed or is a loopback
// origin. An empty allowed list accepts every origin.
func OriginAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 || slices.Contains(allowed, origin) {
		return true
	}
	return IsLocalOrigin(origin)
}

// IsLocalOrigin reports whether the origin's host is localhost or a loopback
// address. Only the parsed hostname is compared.
func IsLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
