package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP from an HTTP request. When trustProxy is
// false, forwarded headers are ignored and the connection's remote address is
// used, which prevents rate-limit bypass via spoofed X-Forwarded-For.
//
// When trustProxy is true, trustedProxyCount says how many proxies sit in
// front of the server: the client IP is taken that many hops from the right
// of X-Forwarded-For, so entries appended by untrusted parties are skipped.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			idx := len(ips) - trustedProxyCount
			if idx < 0 {
				idx = 0
			}
			ip := strings.TrimSpace(ips[idx])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if net.ParseIP(xri) != nil {
				return xri
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
