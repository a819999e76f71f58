package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/guardrail/internal/alert"
	auditDomain "github.com/allisson/guardrail/internal/audit/domain"
	auditUsecase "github.com/allisson/guardrail/internal/audit/usecase"
	"github.com/allisson/guardrail/internal/csrf"
	apperrors "github.com/allisson/guardrail/internal/errors"
	"github.com/allisson/guardrail/internal/ratelimit"
)

type fakeLimiter struct {
	decision    ratelimit.Decision
	err         error
	gotClientID string
	gotCategory ratelimit.Category
}

func (f *fakeLimiter) Check(_ context.Context, clientID string, c ratelimit.Category) (ratelimit.Decision, error) {
	f.gotClientID = clientID
	f.gotCategory = c
	return f.decision, f.err
}

func (f *fakeLimiter) Config(c ratelimit.Category) ratelimit.Config {
	return ratelimit.DefaultConfigs()[c]
}

type fakeCSRF struct {
	ok        bool
	gotValues csrf.RequestValues
	gotHash   string
}

func (f *fakeCSRF) ValidateRequest(v csrf.RequestValues, storedHash string) bool {
	f.gotValues = v
	f.gotHash = storedHash
	return f.ok
}

type fakeAuditLogger struct {
	events        []*auditDomain.Event
	securityDescs []string
	securityMeta  []auditDomain.Metadata
	err           error
}

func (f *fakeAuditLogger) LogFromRequest(_ context.Context, _ auditUsecase.RequestInfo, event *auditDomain.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditLogger) LogSecurityEvent(_ context.Context, _ auditUsecase.RequestInfo, description string, metadata auditDomain.Metadata) {
	f.securityDescs = append(f.securityDescs, description)
	f.securityMeta = append(f.securityMeta, metadata)
}

type fakeMetrics struct {
	checks      map[string]string
	requests    []int
	auditWrites []string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{checks: make(map[string]string)}
}

func (f *fakeMetrics) RecordCheck(_ context.Context, check, outcome string) {
	f.checks[check] = outcome
}

func (f *fakeMetrics) RecordRequest(_ context.Context, status int, _ time.Duration) {
	f.requests = append(f.requests, status)
}

func (f *fakeMetrics) RecordAuditWrite(_ context.Context, status string) {
	f.auditWrites = append(f.auditWrites, status)
}

type fixture struct {
	limiter *fakeLimiter
	csrf    *fakeCSRF
	audit   *fakeAuditLogger
	metrics *fakeMetrics
	pipe    *Pipeline
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		limiter: &fakeLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 99, Reset: time.Now().Add(time.Minute)}},
		csrf:    &fakeCSRF{ok: true},
		audit:   &fakeAuditLogger{},
		metrics: newFakeMetrics(),
	}
	f.pipe = New(cfg, f.limiter, f.csrf, f.audit, f.metrics, nil, slog.Default())
	return f
}

func okHandler(data any) Handler {
	return func(context.Context, *Request) (any, error) {
		return data, nil
	}
}

func newGetRequest(path string) *Request {
	return &Request{
		Method:     "GET",
		Path:       path,
		Headers:    map[string][]string{"User-Agent": {"test-client/1.0"}},
		RemoteAddr: "203.0.113.9:4455",
	}
}

func newPostRequest(path string, body []byte) *Request {
	req := newGetRequest(path)
	req.Method = "POST"
	req.Body = body
	req.Headers["Content-Type"] = []string{"application/json"}
	return req
}

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(Config{})
	req := newGetRequest("/bookings")

	resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(map[string]string{"id": "42"}))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Envelope.Success)
	assert.Equal(t, map[string]string{"id": "42"}, resp.Envelope.Data)
	require.NotEmpty(t, resp.Envelope.RequestID)
	assert.Equal(t, resp.Envelope.RequestID, resp.Headers["X-Request-ID"])
	assert.Equal(t, "nosniff", resp.Headers["X-Content-Type-Options"])
	assert.Equal(t, "DENY", resp.Headers["X-Frame-Options"])

	assert.Equal(t, "ip:203.0.113.9", f.limiter.gotClientID)
	assert.Equal(t, ratelimit.CategoryAPI, f.limiter.gotCategory)
	assert.Equal(t, "allowed", f.metrics.checks["rate_limit"])
	assert.Equal(t, []int{http.StatusOK}, f.metrics.requests)

	require.Len(t, f.audit.events, 1)
	event := f.audit.events[0]
	assert.Equal(t, auditDomain.EventAPIResponse, event.Type)
	assert.True(t, event.Success)
}

func TestExecuteLogRequests(t *testing.T) {
	f := newFixture(Config{LogRequests: true})

	resp := f.pipe.Execute(context.Background(), newGetRequest("/bookings"), Options{}, okHandler(nil))

	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, f.audit.events, 2)
	assert.Equal(t, auditDomain.EventAPIRequest, f.audit.events[0].Type)
	assert.Equal(t, auditDomain.EventAPIResponse, f.audit.events[1].Type)
}

func TestExecuteCategoryOption(t *testing.T) {
	f := newFixture(Config{})

	f.pipe.Execute(context.Background(), newGetRequest("/login"), Options{Category: ratelimit.CategoryAuth}, okHandler(nil))

	assert.Equal(t, ratelimit.CategoryAuth, f.limiter.gotCategory)
}

func TestExecuteRateLimited(t *testing.T) {
	f := newFixture(Config{})
	reset := time.Now().Add(30 * time.Second)
	f.limiter.decision = ratelimit.Decision{Allowed: false, Remaining: 0, Reset: reset}

	called := false
	resp := f.pipe.Execute(context.Background(), newGetRequest("/bookings"), Options{},
		func(context.Context, *Request) (any, error) {
			called = true
			return nil, nil
		})

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.Equal(t, "rate limit exceeded", resp.Envelope.Error)
	assert.Equal(t, "0", resp.Headers["X-RateLimit-Remaining"])
	assert.Equal(t, strconv.FormatInt(reset.Unix(), 10), resp.Headers["X-RateLimit-Reset"])
	assert.NotEmpty(t, resp.Headers["Retry-After"])
	assert.Equal(t, "rejected", f.metrics.checks["rate_limit"])

	require.Len(t, f.audit.events, 1)
	event := f.audit.events[0]
	assert.Equal(t, auditDomain.EventRateLimitExceeded, event.Type)
	assert.Equal(t, auditDomain.LevelWarning, event.Level)
	meta, ok := event.Metadata.(auditDomain.RateLimitMeta)
	require.True(t, ok)
	assert.Equal(t, "api", meta.Category)
	assert.Equal(t, 100, meta.Limit)
}

func TestExecuteRateLimitFailOpen(t *testing.T) {
	f := newFixture(Config{})
	f.limiter.err = apperrors.New("redis unreachable")

	resp := f.pipe.Execute(context.Background(), newGetRequest("/bookings"), Options{}, okHandler("data"))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "error", f.metrics.checks["rate_limit"])
}

func TestExecuteOriginCheck(t *testing.T) {
	cfg := Config{AllowedOrigins: []string{"https://app.example.com"}}

	t.Run("disallowed origin rejected", func(t *testing.T) {
		f := newFixture(cfg)
		req := newPostRequest("/bookings", []byte(`{}`))
		req.Headers["Origin"] = []string{"https://evil.example"}

		resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

		assert.Equal(t, http.StatusForbidden, resp.Status)
		assert.Equal(t, "invalid origin", resp.Envelope.Error)
		require.Len(t, f.audit.securityDescs, 1)
		assert.Equal(t, "request from disallowed origin", f.audit.securityDescs[0])
		meta, ok := f.audit.securityMeta[0].(auditDomain.SecurityViolationMeta)
		require.True(t, ok)
		assert.Equal(t, "origin", meta.Check)
		assert.Equal(t, "https://evil.example", meta.Origin)
	})

	t.Run("allowed origin passes", func(t *testing.T) {
		f := newFixture(cfg)
		req := newPostRequest("/bookings", []byte(`{}`))
		req.Headers["Origin"] = []string{"https://app.example.com"}

		resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "allowed", f.metrics.checks["origin"])
	})

	t.Run("missing origin is skipped", func(t *testing.T) {
		f := newFixture(cfg)
		req := newPostRequest("/bookings", []byte(`{}`))

		resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "skipped", f.metrics.checks["origin"])
	})

	t.Run("safe method skips the check", func(t *testing.T) {
		f := newFixture(cfg)
		req := newGetRequest("/bookings")
		req.Headers["Origin"] = []string{"https://evil.example"}

		resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

		assert.Equal(t, http.StatusOK, resp.Status)
	})
}

func TestExecuteCSRFCheck(t *testing.T) {
	cfg := Config{CSRFEnabled: true}

	t.Run("invalid token rejected", func(t *testing.T) {
		f := newFixture(cfg)
		f.csrf.ok = false
		req := newPostRequest("/bookings", []byte(`{}`))

		resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

		assert.Equal(t, http.StatusForbidden, resp.Status)
		assert.Equal(t, "CSRF validation failed", resp.Envelope.Error)
		require.Len(t, f.audit.securityDescs, 1)
		assert.Equal(t, "CSRF validation failed", f.audit.securityDescs[0])
	})

	t.Run("request values and stored hash are forwarded", func(t *testing.T) {
		f := newFixture(cfg)
		req := newPostRequest("/bookings", []byte(`{}`))
		req.Headers[csrf.HeaderToken] = []string{"token-value"}
		req.Headers[csrf.HeaderSecret] = []string{"secret-value"}
		req.Cookies = map[string]string{csrf.CookieToken: "token-value"}
		req.Session = &Session{UserID: "u1", CSRFHash: "stored-hash"}

		resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "stored-hash", f.csrf.gotHash)
		assert.Equal(t, "POST", f.csrf.gotValues.Method)
		assert.Equal(t, "token-value", f.csrf.gotValues.HeaderToken)
		assert.Equal(t, "secret-value", f.csrf.gotValues.HeaderSecret)
		assert.Equal(t, "token-value", f.csrf.gotValues.CookieToken)
	})

	t.Run("route exemption skips the check", func(t *testing.T) {
		f := newFixture(cfg)
		f.csrf.ok = false
		req := newPostRequest("/login", []byte(`{}`))

		resp := f.pipe.Execute(context.Background(), req, Options{DisableCSRF: true}, okHandler(nil))

		assert.Equal(t, http.StatusOK, resp.Status)
	})

	t.Run("safe method skips the check", func(t *testing.T) {
		f := newFixture(cfg)
		f.csrf.ok = false

		resp := f.pipe.Execute(context.Background(), newGetRequest("/bookings"), Options{}, okHandler(nil))

		assert.Equal(t, http.StatusOK, resp.Status)
	})
}

func TestExecutePayloadSize(t *testing.T) {
	f := newFixture(Config{MaxBodyBytes: 10})
	req := newPostRequest("/bookings", []byte(`{"note":"this is too long"}`))

	resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Status)
	assert.Equal(t, "payload too large", resp.Envelope.Error)
	assert.Equal(t, "rejected", f.metrics.checks["payload_size"])

	require.Len(t, f.audit.events, 1)
	event := f.audit.events[0]
	assert.Equal(t, auditDomain.EventAPIError, event.Type)
	require.NotNil(t, event.ErrorMessage)
	assert.Contains(t, *event.ErrorMessage, "exceeds limit of 10")
}

func TestExecuteContentType(t *testing.T) {
	cfg := Config{AllowedContentTypes: []string{"application/json"}}

	t.Run("disallowed type rejected", func(t *testing.T) {
		f := newFixture(cfg)
		req := newPostRequest("/bookings", []byte(`data`))
		req.Headers["Content-Type"] = []string{"text/plain"}

		resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "unsupported content type", resp.Envelope.Error)
	})

	t.Run("media type parameters are ignored", func(t *testing.T) {
		f := newFixture(cfg)
		req := newPostRequest("/bookings", []byte(`{}`))
		req.Headers["Content-Type"] = []string{"application/json; charset=utf-8"}

		resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

		assert.Equal(t, http.StatusOK, resp.Status)
	})

	t.Run("empty body skips the check", func(t *testing.T) {
		f := newFixture(cfg)
		req := newPostRequest("/bookings", nil)
		req.Headers["Content-Type"] = []string{"text/plain"}

		resp := f.pipe.Execute(context.Background(), req, Options{}, okHandler(nil))

		assert.Equal(t, http.StatusOK, resp.Status)
	})
}

func TestExecuteSanitizeBody(t *testing.T) {
	t.Run("body is sanitized before the handler", func(t *testing.T) {
		f := newFixture(Config{})
		req := newPostRequest("/bookings", []byte(`{"name":"<script>alert(1)</script>Bob"}`))

		var seenBody []byte
		resp := f.pipe.Execute(context.Background(), req, Options{SanitizeBody: true},
			func(_ context.Context, r *Request) (any, error) {
				seenBody = r.Body
				return nil, nil
			})

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.NotContains(t, string(seenBody), "<script")
		assert.Contains(t, string(seenBody), "Bob")
	})

	t.Run("invalid JSON rejected", func(t *testing.T) {
		f := newFixture(Config{})
		req := newPostRequest("/bookings", []byte(`{"name":`))

		resp := f.pipe.Execute(context.Background(), req, Options{SanitizeBody: true}, okHandler(nil))

		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "invalid request body", resp.Envelope.Error)
	})

	t.Run("empty body passes through", func(t *testing.T) {
		f := newFixture(Config{})
		req := newPostRequest("/bookings", nil)

		resp := f.pipe.Execute(context.Background(), req, Options{SanitizeBody: true}, okHandler(nil))

		assert.Equal(t, http.StatusOK, resp.Status)
	})
}

func TestExecutePanicRecovery(t *testing.T) {
	f := newFixture(Config{})

	resp := f.pipe.Execute(context.Background(), newGetRequest("/bookings"), Options{},
		func(context.Context, *Request) (any, error) {
			panic("boom")
		})

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, "internal error", resp.Envelope.Error)
	assert.NotContains(t, resp.Envelope.Message, "boom")

	require.Len(t, f.audit.events, 1)
	event := f.audit.events[0]
	assert.Equal(t, auditDomain.LevelError, event.Level)
	require.NotNil(t, event.ErrorMessage)
	assert.Contains(t, *event.ErrorMessage, "boom")
}

func TestExecuteFailureMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "validation error with fields",
			err:        apperrors.NewValidationError(apperrors.FieldError{Field: "name", Message: "required", Code: "required"}),
			wantStatus: http.StatusBadRequest,
			wantError:  "validation failed",
		},
		{
			name:       "wrapped validation sentinel",
			err:        apperrors.Wrap(apperrors.ErrValidationFailed, "decoding payload"),
			wantStatus: http.StatusBadRequest,
			wantError:  "validation failed",
		},
		{
			name:       "rate limit sentinel",
			err:        apperrors.ErrRateLimitExceeded,
			wantStatus: http.StatusTooManyRequests,
			wantError:  "rate limit exceeded",
		},
		{
			name:       "unauthorized",
			err:        apperrors.ErrUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized",
		},
		{
			name:       "not found",
			err:        apperrors.Wrap(apperrors.ErrNotFound, "loading booking"),
			wantStatus: http.StatusNotFound,
			wantError:  "not found",
		},
		{
			name:       "unknown error stays internal",
			err:        apperrors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{})

			resp := f.pipe.Execute(context.Background(), newGetRequest("/bookings"), Options{},
				func(context.Context, *Request) (any, error) {
					return nil, tt.err
				})

			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.False(t, resp.Envelope.Success)
			assert.Equal(t, tt.wantError, resp.Envelope.Error)
			assert.Equal(t, []int{tt.wantStatus}, f.metrics.requests)

			if tt.name == "validation error with fields" {
				require.Len(t, resp.Envelope.Fields, 1)
				assert.Equal(t, "name", resp.Envelope.Fields[0].Field)
			}
		})
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	digests []string
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digests = append(r.digests, digest)
	return nil
}

func TestExecuteInternalErrorAlert(t *testing.T) {
	notifier := &recordingNotifier{}
	dispatcher := alert.NewDispatcher([]alert.Notifier{notifier}, 10, slog.Default())

	f := newFixture(Config{})
	f.pipe.alerts = dispatcher

	resp := f.pipe.Execute(context.Background(), newGetRequest("/bookings"), Options{},
		func(context.Context, *Request) (any, error) {
			return nil, apperrors.New("sql: connection reset")
		})
	dispatcher.Wait()

	assert.Equal(t, http.StatusInternalServerError, resp.Status)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.digests, 1)
	assert.Contains(t, notifier.digests[0], "[database]")
	assert.Contains(t, notifier.digests[0], "sql: connection reset")
}

func TestExecuteAuditWriteFailure(t *testing.T) {
	f := newFixture(Config{})
	f.audit.err = apperrors.New("insert failed")

	resp := f.pipe.Execute(context.Background(), newGetRequest("/bookings"), Options{}, okHandler("data"))

	// An unavailable audit store degrades observability, never availability.
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, f.metrics.auditWrites, "error")
}

func TestWrap(t *testing.T) {
	f := newFixture(Config{})
	guarded := f.pipe.Wrap(Options{}, okHandler("data"))

	resp := guarded(context.Background(), newGetRequest("/bookings"))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "data", resp.Envelope.Data)
}
