package security

import "net/http"

// SetSecurityHeaders applies the standard security headers for endpoints that
// return credentials. Token and introspection responses must never be cached
// (RFC 6749 section 5.1).
func SetSecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
}
