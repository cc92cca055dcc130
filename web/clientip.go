package web

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientIP returns the address the rate limiter should key on.
//
// Proxy headers are honored only when the direct peer falls inside one of
// the configured trusted CIDR ranges; otherwise RemoteAddr is always
// used, so untrusted clients cannot spoof their source IP and walk around
// the per-IP window.
func (s *Server) clientIP(r *http.Request) string {
	remote, _ := parseIPCandidate(r.RemoteAddr)

	trusted := false
	if len(s.cfg.TrustedProxies) > 0 && remote != "" {
		if addr, err := netip.ParseAddr(remote); err == nil {
			for _, prefix := range s.cfg.TrustedProxies {
				if prefix.Contains(addr) {
					trusted = true
					break
				}
			}
		}
	}

	if trusted {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip, ok := parseIPCandidate(part); ok {
					return ip
				}
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			if ip, ok := parseIPCandidate(xrip); ok {
				return ip
			}
		}
	}

	return remote
}

func parseIPCandidate(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(v); err == nil {
		v = host
	}
	v = strings.TrimPrefix(v, "[")
	v = strings.TrimSuffix(v, "]")
	if i := strings.IndexByte(v, '%'); i >= 0 {
		v = v[:i]
	}
	addr, err := netip.ParseAddr(v)
	if err != nil {
		return "", false
	}
	return addr.String(), true
}
