package api

import (
	"net"
	"net/http"
	"strings"
)

// clientIP returns the caller address for request logs. It takes the first
// X-Forwarded-For hop, then X-Real-IP, then RemoteAddr without its port.
// Forwarded headers are trusted as set by the load balancer in front of the
// PDP; the value is logged only and never reaches a decision.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
