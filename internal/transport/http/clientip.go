package http

import (
	"net"
	stdhttp "net/http"
	"strings"
)

// trustForwardHeaders decides whether forwarding headers from this peer
// may be believed. Loopback peers (a reverse proxy on the same host)
// are always trusted; anyone else needs the explicit config opt-in.
func trustForwardHeaders(r *stdhttp.Request, optIn bool) bool {
	if optIn {
		return true
	}
	ip := net.ParseIP(remoteHost(r))
	return ip != nil && ip.IsLoopback()
}

// clientIP derives the origin address for a connection. Untrusted peers
// get their raw socket address so they cannot spoof an origin through
// headers.
func clientIP(r *stdhttp.Request, trusted bool) string {
	if !trusted {
		return remoteHost(r)
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return remoteHost(r)
}

func remoteHost(r *stdhttp.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
