package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the request source address without port. Forwarding
// headers are only honoured upstream, by middleware.TrustedRealIP, for peers
// inside the configured proxy ranges.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
