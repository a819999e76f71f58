package pipeline

import (
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/allisson/guardrail/internal/errors"
)

// Envelope is the uniform response shape every wrapped handler returns.
type Envelope struct {
	Success   bool                   `json:"success"`
	Data      any                    `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Fields    []apperrors.FieldError `json:"fields,omitempty"`
	Timestamp string                 `json:"timestamp"`
	RequestID string                 `json:"requestId,omitempty"`
}

// Response is the full pipeline outcome: status equivalent, headers and body
// envelope. The transport maps these onto its own wire format.
type Response struct {
	Status   int
	Headers  map[string]string
	Envelope Envelope
}

// securityHeaders are attached to every response, success or failure.
var securityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"X-XSS-Protection":       "1; mode=block",
}

// newResponse builds a response with the standard security headers applied.
func newResponse(status int, requestID string, now time.Time) *Response {
	headers := make(map[string]string, len(securityHeaders)+1)
	for name, value := range securityHeaders {
		headers[name] = value
	}
	if requestID != "" {
		headers["X-Request-ID"] = requestID
	}

	return &Response{
		Status:  status,
		Headers: headers,
		Envelope: Envelope{
			Timestamp: now.UTC().Format(time.RFC3339),
			RequestID: requestID,
		},
	}
}

// successResponse wraps handler data in a success envelope.
func successResponse(data any, requestID string, now time.Time) *Response {
	resp := newResponse(http.StatusOK, requestID, now)
	resp.Envelope.Success = true
	resp.Envelope.Data = data
	return resp
}

// failureResponse builds an error envelope with a short machine-readable
// error and a human message.
func failureResponse(status int, errText, message, requestID string, now time.Time) *Response {
	resp := newResponse(status, requestID, now)
	resp.Envelope.Error = errText
	resp.Envelope.Message = message
	return resp
}

// withRateLimitHeaders exposes the remaining budget and window reset on a
// rate-limit rejection.
func (r *Response) withRateLimitHeaders(remaining int, reset time.Time) *Response {
	r.Headers["X-RateLimit-Remaining"] = strconv.Itoa(remaining)
	r.Headers["X-RateLimit-Reset"] = strconv.FormatInt(reset.Unix(), 10)
	retryAfter := int(time.Until(reset).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	r.Headers["Retry-After"] = strconv.Itoa(retryAfter)
	return r
}
