package checker

import (
	"net/http"
	"strings"

	"github.com/August26/proxyprobe/internal/model"
)

// AnonymityInput is what the echo service told us about a relayed request.
type AnonymityInput struct {
	// Origin is the raw "origin" field, possibly a comma-separated chain
	// when the proxy appended X-Forwarded-For.
	Origin string

	// RealIP is our own address as seen without a proxy, or "" if unknown.
	RealIP string

	// HeadersObserved are the request headers the echo service received.
	// Nil when the echo endpoint does not report headers.
	HeadersObserved map[string]string
}

var leakHeaders = []string{
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Real-Ip",
	"Forwarded",
	"Via",
	"Proxy-Connection",
}

// DetermineAnonymity returns "transparent", "anonymous", "elite", or "unknown".
func DetermineAnonymity(in AnonymityInput) string {
	ips := originIPs(in.Origin)
	if len(ips) == 0 {
		return model.AnonymityUnknown
	}

	// A chain means the proxy forwarded an earlier hop, usually us.
	if len(ips) > 1 {
		return model.AnonymityTransparent
	}
	if in.RealIP != "" && ips[0] == in.RealIP {
		return model.AnonymityTransparent
	}

	if in.HeadersObserved == nil {
		return model.AnonymityUnknown
	}

	headers := make(map[string]string, len(in.HeadersObserved))
	for k, v := range in.HeadersObserved {
		headers[http.CanonicalHeaderKey(k)] = v
	}

	leaked := false
	for _, h := range leakHeaders {
		v := headers[h]
		if v == "" {
			continue
		}
		if in.RealIP != "" && strings.Contains(v, in.RealIP) {
			return model.AnonymityTransparent
		}
		leaked = true
	}
	if leaked {
		return model.AnonymityAnonymous
	}

	// remote only sees the proxy IP and nothing announces a proxy
	return model.AnonymityElite
}

func originIPs(origin string) []string {
	var out []string
	for _, part := range strings.Split(origin, ",") {
		if ip := strings.TrimSpace(part); ip != "" {
			out = append(out, ip)
		}
	}
	return out
}

func firstIPToken(origin string) string {
	if ips := originIPs(origin); len(ips) > 0 {
		return ips[0]
	}
	return ""
}
