package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP rewrites RemoteAddr from X-Forwarded-For or X-Real-IP, but
// only when the socket peer is inside one of the trusted ranges. The
// forwarded chain is read right to left and the first hop outside the
// trusted ranges is taken as the client. Requests from any other peer keep
// their socket address, so a client cannot pick its own rate-limit key.
func TrustedRealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer, ok := socketAddr(r.RemoteAddr)
			if ok && inPrefixes(trusted, peer) {
				if client, found := forwardedClient(r.Header, trusted); found {
					r.RemoteAddr = client.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(h http.Header, trusted []netip.Prefix) (netip.Addr, bool) {
	var hops []string
	for _, v := range h.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// A malformed hop ends the chain; anything left of it is client supplied.
			return netip.Addr{}, false
		}
		addr = addr.Unmap()
		if !inPrefixes(trusted, addr) {
			return addr, true
		}
	}
	if len(hops) > 0 {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(h.Get("X-Real-IP")))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func socketAddr(remote string) (netip.Addr, bool) {
	host := strings.TrimSpace(remote)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func inPrefixes(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
