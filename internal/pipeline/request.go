// Package pipeline composes the security checks around caller-supplied
// handlers. The pipeline is transport-agnostic: requests arrive as structured
// objects from whatever layer terminates the connection.
package pipeline

import (
	"net"
	"net/textproto"
	"strings"
)

// Session is the authenticated-session view consumed from the external
// identity provider. The pipeline never authenticates; it only reads.
type Session struct {
	UserID string
	Role   string
	// CSRFHash is the stored server-side hash for this session's CSRF pair.
	CSRFHash string
}

// Request is one inbound request as handed over by the transport layer.
type Request struct {
	Method     string
	Path       string
	Headers    map[string][]string
	Cookies    map[string]string
	Body       []byte
	RemoteAddr string
	Session    *Session
	// RequestID is assigned by the pipeline before the handler runs.
	RequestID string
}

// Header returns the first value of a header, case-insensitively. Empty when
// absent.
func (r *Request) Header(name string) string {
	if values, ok := r.Headers[name]; ok && len(values) > 0 {
		return values[0]
	}
	canonical := textproto.CanonicalMIMEHeaderKey(name)
	for key, values := range r.Headers {
		if textproto.CanonicalMIMEHeaderKey(key) == canonical && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// Cookie returns a cookie value, empty when absent.
func (r *Request) Cookie(name string) string {
	return r.Cookies[name]
}

// ContentType returns the media type of the body without parameters.
func (r *Request) ContentType() string {
	ct := r.Header("Content-Type")
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// UserAgent returns the client's user agent header.
func (r *Request) UserAgent() string {
	return r.Header("User-Agent")
}

// Origin returns the Origin header, falling back to Referer.
func (r *Request) Origin() string {
	if origin := r.Header("Origin"); origin != "" {
		return origin
	}
	return r.Header("Referer")
}

// IP resolves the client address: X-Forwarded-For first hop, then X-Real-IP,
// then RemoteAddr with any port stripped.
func (r *Request) IP() string {
	if xff := r.Header("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientID identifies the client for rate limiting: the authenticated user ID
// when present, else the resolved IP.
func (r *Request) ClientID() string {
	if r.Session != nil && r.Session.UserID != "" {
		return "user:" + r.Session.UserID
	}
	return "ip:" + r.IP()
}

// HasBody reports whether the method is expected to carry a payload.
func (r *Request) HasBody() bool {
	switch r.Method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

// Unsafe reports whether the method is state-changing and therefore subject
// to origin and CSRF checks.
func (r *Request) Unsafe() bool {
	switch r.Method {
	case "GET", "HEAD", "OPTIONS":
		return false
	}
	return true
}
