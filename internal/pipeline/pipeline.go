package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/guardrail/internal/alert"
	auditDomain "github.com/allisson/guardrail/internal/audit/domain"
	auditUsecase "github.com/allisson/guardrail/internal/audit/usecase"
	"github.com/allisson/guardrail/internal/csrf"
	apperrors "github.com/allisson/guardrail/internal/errors"
	"github.com/allisson/guardrail/internal/ratelimit"
	"github.com/allisson/guardrail/internal/sanitize"
)

// Handler is the wrapped business handler. It is invoked at most once per
// request; the returned data is wrapped in the success envelope.
type Handler func(ctx context.Context, req *Request) (any, error)

// RateLimiter is the pipeline's view of the rate limit component.
type RateLimiter interface {
	Check(ctx context.Context, clientID string, c ratelimit.Category) (ratelimit.Decision, error)
	Config(c ratelimit.Category) ratelimit.Config
}

// CSRFValidator is the pipeline's view of the CSRF component.
type CSRFValidator interface {
	ValidateRequest(v csrf.RequestValues, storedHash string) bool
}

// AuditLogger is the pipeline's view of the audit store.
type AuditLogger interface {
	LogFromRequest(ctx context.Context, req auditUsecase.RequestInfo, event *auditDomain.Event) error
	LogSecurityEvent(ctx context.Context, req auditUsecase.RequestInfo, description string, metadata auditDomain.Metadata)
}

// SecurityMetrics records check outcomes, handler timings and audit write
// results. Satisfied by the metrics package.
type SecurityMetrics interface {
	RecordCheck(ctx context.Context, check, outcome string)
	RecordRequest(ctx context.Context, status int, duration time.Duration)
	RecordAuditWrite(ctx context.Context, status string)
}

// Config holds the pipeline-wide security settings.
type Config struct {
	// AllowedOrigins is the origin allow-list for unsafe methods. Empty
	// disables the origin check.
	AllowedOrigins []string
	// CSRFEnabled turns the CSRF check on for unsafe methods.
	CSRFEnabled bool
	// MaxBodyBytes caps request payloads. Zero disables the size check.
	MaxBodyBytes int64
	// AllowedContentTypes is the content-type allow-list for methods with a
	// body. Empty disables the content-type check.
	AllowedContentTypes []string
	// LogRequests emits an api_request audit event before the handler runs.
	LogRequests bool
}

// Options customizes one wrapped route.
type Options struct {
	// Category selects the rate limit bucket. Defaults to api.
	Category ratelimit.Category
	// DisableCSRF exempts the route from the CSRF check (e.g. login, which
	// has no session yet).
	DisableCSRF bool
	// SanitizeBody runs the general sanitizer over a JSON body before the
	// handler sees it.
	SanitizeBody bool
}

// Pipeline composes the security checks around handlers. One instance is
// built at process start and shared by every request; it holds no per-request
// state.
type Pipeline struct {
	cfg     Config
	limiter RateLimiter
	csrf    CSRFValidator
	audit   AuditLogger
	metrics SecurityMetrics
	alerts  *alert.Dispatcher
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Pipeline. alerts may be nil when no channels are configured.
func New(
	cfg Config,
	limiter RateLimiter,
	csrfValidator CSRFValidator,
	auditLogger AuditLogger,
	securityMetrics SecurityMetrics,
	alerts *alert.Dispatcher,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		limiter: limiter,
		csrf:    csrfValidator,
		audit:   auditLogger,
		metrics: securityMetrics,
		alerts:  alerts,
		logger:  logger,
		now:     time.Now,
	}
}

// Wrap binds options and a handler into a guarded function.
func (p *Pipeline) Wrap(opts Options, handler Handler) func(ctx context.Context, req *Request) *Response {
	return func(ctx context.Context, req *Request) *Response {
		return p.Execute(ctx, req, opts, handler)
	}
}

// Execute runs the check sequence for one request. Checks run strictly in
// order and the first failure is terminal. Every outcome, success or failure,
// is returned as one envelope shape.
func (p *Pipeline) Execute(ctx context.Context, req *Request, opts Options, handler Handler) *Response {
	req.RequestID = uuid.Must(uuid.NewV7()).String()

	category := opts.Category
	if category == "" {
		category = ratelimit.CategoryAPI
	}

	// 1. Rate limit.
	if resp := p.checkRateLimit(ctx, req, category); resp != nil {
		return resp
	}

	// 2. Origin (unsafe methods only).
	if resp := p.checkOrigin(ctx, req); resp != nil {
		return resp
	}

	// 3. CSRF (unsafe methods only, when enabled).
	if resp := p.checkCSRF(ctx, req, opts); resp != nil {
		return resp
	}

	// 4. Payload size.
	if resp := p.checkPayloadSize(ctx, req); resp != nil {
		return resp
	}

	// 5. Content type.
	if resp := p.checkContentType(ctx, req); resp != nil {
		return resp
	}

	// 6. Optional body sanitization.
	if opts.SanitizeBody {
		if resp := p.sanitizeBody(req); resp != nil {
			return resp
		}
	}

	// 7. Optional request-received audit log.
	if p.cfg.LogRequests {
		p.auditRequest(ctx, req)
	}

	// 8. Handler invocation, at most once, with panic containment.
	start := p.now()
	data, err := p.invoke(ctx, req, handler)
	duration := p.now().Sub(start)

	if err != nil {
		return p.failure(ctx, req, err, duration)
	}

	resp := successResponse(data, req.RequestID, p.now())
	p.auditResponse(ctx, req, resp.Status, duration)
	p.metrics.RecordRequest(ctx, resp.Status, duration)
	return resp
}

func (p *Pipeline) checkRateLimit(ctx context.Context, req *Request, category ratelimit.Category) *Response {
	decision, err := p.limiter.Check(ctx, req.ClientID(), category)
	if err != nil {
		// Fail open: an unavailable limiter store must not take down the
		// API. The failure itself is loud in logs and metrics.
		p.logger.Error("rate limit check failed",
			slog.String("client_id", req.ClientID()),
			slog.String("category", string(category)),
			slog.Any("error", err),
		)
		p.metrics.RecordCheck(ctx, "rate_limit", "error")
		return nil
	}

	if decision.Allowed {
		p.metrics.RecordCheck(ctx, "rate_limit", "allowed")
		return nil
	}

	p.metrics.RecordCheck(ctx, "rate_limit", "rejected")

	cfg := p.limiter.Config(category)
	event := &auditDomain.Event{
		Level:       auditDomain.LevelWarning,
		Type:        auditDomain.EventRateLimitExceeded,
		Action:      "rate_limit_check",
		Description: fmt.Sprintf("rate limit exceeded for category %s", category),
		Success:     false,
		Metadata: auditDomain.RateLimitMeta{
			Category:  string(category),
			Limit:     cfg.Limit,
			Remaining: decision.Remaining,
			Reset:     decision.Reset.UTC().Format(time.RFC3339),
		},
	}
	p.setActor(req, event)
	p.writeAudit(ctx, req, event)

	return failureResponse(
		http.StatusTooManyRequests,
		"rate limit exceeded",
		"Too many requests. Please retry after the indicated delay.",
		req.RequestID,
		p.now(),
	).withRateLimitHeaders(decision.Remaining, decision.Reset)
}

func (p *Pipeline) checkOrigin(ctx context.Context, req *Request) *Response {
	if !req.Unsafe() || len(p.cfg.AllowedOrigins) == 0 {
		return nil
	}

	origin := req.Origin()
	if origin == "" {
		// Non-browser clients send no origin; forgery from browsers is
		// covered by the CSRF check that follows.
		p.metrics.RecordCheck(ctx, "origin", "skipped")
		return nil
	}

	for _, allowed := range p.cfg.AllowedOrigins {
		if origin == allowed {
			p.metrics.RecordCheck(ctx, "origin", "allowed")
			return nil
		}
	}

	p.metrics.RecordCheck(ctx, "origin", "rejected")
	p.audit.LogSecurityEvent(ctx, p.requestInfo(req), "request from disallowed origin",
		auditDomain.SecurityViolationMeta{Check: "origin", Origin: origin})

	return failureResponse(
		http.StatusForbidden,
		"invalid origin",
		"The request origin is not allowed.",
		req.RequestID,
		p.now(),
	)
}

func (p *Pipeline) checkCSRF(ctx context.Context, req *Request, opts Options) *Response {
	if !req.Unsafe() || !p.cfg.CSRFEnabled || opts.DisableCSRF {
		return nil
	}

	var storedHash string
	if req.Session != nil {
		storedHash = req.Session.CSRFHash
	}

	values := csrf.RequestValues{
		Method:       req.Method,
		HeaderToken:  req.Header(csrf.HeaderToken),
		HeaderSecret: req.Header(csrf.HeaderSecret),
		CookieToken:  req.Cookie(csrf.CookieToken),
	}

	if p.csrf.ValidateRequest(values, storedHash) {
		p.metrics.RecordCheck(ctx, "csrf", "allowed")
		return nil
	}

	p.metrics.RecordCheck(ctx, "csrf", "rejected")
	p.audit.LogSecurityEvent(ctx, p.requestInfo(req), "CSRF validation failed",
		auditDomain.SecurityViolationMeta{Check: "csrf"})

	return failureResponse(
		http.StatusForbidden,
		"CSRF validation failed",
		"The request could not be verified.",
		req.RequestID,
		p.now(),
	)
}

func (p *Pipeline) checkPayloadSize(ctx context.Context, req *Request) *Response {
	if !req.HasBody() || p.cfg.MaxBodyBytes <= 0 {
		return nil
	}

	if int64(len(req.Body)) <= p.cfg.MaxBodyBytes {
		return nil
	}

	p.metrics.RecordCheck(ctx, "payload_size", "rejected")

	errMsg := fmt.Sprintf("payload of %d bytes exceeds limit of %d", len(req.Body), p.cfg.MaxBodyBytes)
	event := &auditDomain.Event{
		Level:        auditDomain.LevelWarning,
		Type:         auditDomain.EventAPIError,
		Action:       "payload_size_check",
		Description:  "request payload too large",
		Success:      false,
		ErrorMessage: &errMsg,
		Metadata:     auditDomain.RequestMeta{Method: req.Method, Path: req.Path},
	}
	p.setActor(req, event)
	p.writeAudit(ctx, req, event)

	return failureResponse(
		http.StatusRequestEntityTooLarge,
		"payload too large",
		"The request payload exceeds the allowed size.",
		req.RequestID,
		p.now(),
	)
}

func (p *Pipeline) checkContentType(ctx context.Context, req *Request) *Response {
	if !req.HasBody() || len(req.Body) == 0 || len(p.cfg.AllowedContentTypes) == 0 {
		return nil
	}

	ct := req.ContentType()
	for _, allowed := range p.cfg.AllowedContentTypes {
		if ct == allowed {
			return nil
		}
	}

	p.metrics.RecordCheck(ctx, "content_type", "rejected")

	errMsg := fmt.Sprintf("content type %q is not allowed", ct)
	event := &auditDomain.Event{
		Level:        auditDomain.LevelWarning,
		Type:         auditDomain.EventAPIError,
		Action:       "content_type_check",
		Description:  "unsupported content type",
		Success:      false,
		ErrorMessage: &errMsg,
		Metadata:     auditDomain.RequestMeta{Method: req.Method, Path: req.Path},
	}
	p.setActor(req, event)
	p.writeAudit(ctx, req, event)

	return failureResponse(
		http.StatusBadRequest,
		"unsupported content type",
		"The request content type is not supported.",
		req.RequestID,
		p.now(),
	)
}

// sanitizeBody decodes a JSON body, runs the general sanitizer over it and
// re-encodes. Non-JSON bodies are rejected since sanitization was requested.
func (p *Pipeline) sanitizeBody(req *Request) *Response {
	if len(req.Body) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(req.Body, &decoded); err != nil {
		return failureResponse(
			http.StatusBadRequest,
			"invalid request body",
			"The request body is not valid JSON.",
			req.RequestID,
			p.now(),
		)
	}

	clean := sanitize.SanitizeObject(decoded)
	encoded, err := json.Marshal(clean)
	if err != nil {
		return failureResponse(
			http.StatusBadRequest,
			"invalid request body",
			"The request body could not be processed.",
			req.RequestID,
			p.now(),
		)
	}

	req.Body = encoded
	return nil
}

// invoke runs the handler with panic containment. A panic surfaces as an
// internal error; the handler is never retried.
func (p *Pipeline) invoke(ctx context.Context, req *Request, handler Handler) (data any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			p.logger.Error("panic recovered",
				slog.Any("error", recovered),
				slog.String("path", req.Path),
				slog.String("method", req.Method),
			)
			err = apperrors.Wrap(apperrors.ErrInternal, fmt.Sprintf("panic: %v", recovered))
		}
	}()

	return handler(ctx, req)
}

// failure maps a handler error onto the taxonomy, audits it and builds the
// normalized envelope. Internal errors never leak their detail to the client.
func (p *Pipeline) failure(ctx context.Context, req *Request, err error, duration time.Duration) *Response {
	var resp *Response

	var validationErr *apperrors.ValidationError
	switch {
	case apperrors.As(err, &validationErr):
		resp = failureResponse(http.StatusBadRequest, "validation failed",
			"One or more fields are invalid.", req.RequestID, p.now())
		resp.Envelope.Fields = validationErr.Fields

	case apperrors.Is(err, apperrors.ErrValidationFailed):
		resp = failureResponse(http.StatusBadRequest, "validation failed",
			"One or more fields are invalid.", req.RequestID, p.now())

	case apperrors.Is(err, apperrors.ErrRateLimitExceeded):
		resp = failureResponse(http.StatusTooManyRequests, "rate limit exceeded",
			"Too many requests.", req.RequestID, p.now())

	case apperrors.Is(err, apperrors.ErrUnauthorized):
		resp = failureResponse(http.StatusUnauthorized, "unauthorized",
			"Authentication is required.", req.RequestID, p.now())

	case apperrors.Is(err, apperrors.ErrNotFound):
		resp = failureResponse(http.StatusNotFound, "not found",
			"The requested resource was not found.", req.RequestID, p.now())

	default:
		resp = failureResponse(http.StatusInternalServerError, "internal error",
			"An internal error occurred. Use the request ID to correlate with the audit trail.",
			req.RequestID, p.now())
	}

	if resp.Status == http.StatusInternalServerError {
		p.auditInternalError(ctx, req, err, duration)
	} else {
		p.auditResponse(ctx, req, resp.Status, duration)
	}
	p.metrics.RecordRequest(ctx, resp.Status, duration)

	return resp
}

// auditInternalError records the ERROR event with the underlying message and
// routes a categorized finding to the alert channels.
func (p *Pipeline) auditInternalError(ctx context.Context, req *Request, err error, duration time.Duration) {
	errMsg := err.Error()
	event := &auditDomain.Event{
		Level:        auditDomain.LevelError,
		Type:         auditDomain.EventAPIError,
		Action:       "handler_invocation",
		Description:  fmt.Sprintf("unhandled error on %s %s", req.Method, req.Path),
		Success:      false,
		ErrorMessage: &errMsg,
		Metadata: auditDomain.RequestMeta{
			Method:     req.Method,
			Path:       req.Path,
			Status:     http.StatusInternalServerError,
			DurationMS: duration.Milliseconds(),
		},
	}
	p.setActor(req, event)
	p.writeAudit(ctx, req, event)

	if p.alerts != nil {
		category := apperrors.Categorize(err)
		p.alerts.Dispatch(alert.Snapshot{
			GeneratedAt: p.now(),
			Errors: []alert.Finding{{
				Component: string(category),
				Message:   fmt.Sprintf("%s %s: %s", req.Method, req.Path, errMsg),
				Count:     1,
			}},
		})
	}
}

func (p *Pipeline) auditRequest(ctx context.Context, req *Request) {
	event := &auditDomain.Event{
		Level:       auditDomain.LevelInfo,
		Type:        auditDomain.EventAPIRequest,
		Action:      "request_received",
		Description: fmt.Sprintf("%s %s", req.Method, req.Path),
		Success:     true,
		Metadata:    auditDomain.RequestMeta{Method: req.Method, Path: req.Path},
	}
	p.setActor(req, event)
	p.writeAudit(ctx, req, event)
}

func (p *Pipeline) auditResponse(ctx context.Context, req *Request, status int, duration time.Duration) {
	event := &auditDomain.Event{
		Level:       auditDomain.LevelInfo,
		Type:        auditDomain.EventAPIResponse,
		Action:      "request_completed",
		Description: fmt.Sprintf("%s %s -> %d", req.Method, req.Path, status),
		Success:     status < http.StatusBadRequest,
		Metadata: auditDomain.RequestMeta{
			Method:     req.Method,
			Path:       req.Path,
			Status:     status,
			DurationMS: duration.Milliseconds(),
		},
	}
	p.setActor(req, event)
	p.writeAudit(ctx, req, event)
}

// writeAudit persists one event, recording the outcome and containing any
// failure locally so it never fails the request.
func (p *Pipeline) writeAudit(ctx context.Context, req *Request, event *auditDomain.Event) {
	if err := p.audit.LogFromRequest(ctx, p.requestInfo(req), event); err != nil {
		p.metrics.RecordAuditWrite(ctx, "error")
		p.logger.Error("audit write failed", slog.Any("error", err))
		return
	}
	p.metrics.RecordAuditWrite(ctx, "success")
}

// setActor fills the user fields from the session when present.
func (p *Pipeline) setActor(req *Request, event *auditDomain.Event) {
	if req.Session == nil {
		return
	}
	if req.Session.UserID != "" {
		userID := req.Session.UserID
		event.UserID = &userID
	}
	if req.Session.Role != "" {
		role := req.Session.Role
		event.UserRole = &role
	}
}

func (p *Pipeline) requestInfo(req *Request) auditUsecase.RequestInfo {
	return auditUsecase.RequestInfo{
		IPAddress: req.IP(),
		UserAgent: req.UserAgent(),
		RequestID: req.RequestID,
	}
}
