package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics records security pipeline outcomes for observability.
type SecurityMetrics interface {
	// RecordCheck records one security check outcome.
	// Check examples: "rate_limit", "origin", "csrf", "payload_size".
	// Outcome examples: "allowed", "rejected", "skipped", "error".
	RecordCheck(ctx context.Context, check, outcome string)

	// RecordRequest records a wrapped handler invocation with its response
	// status and duration.
	RecordRequest(ctx context.Context, status int, duration time.Duration)

	// RecordAuditWrite records an audit store write outcome.
	// Status examples: "success", "error".
	RecordAuditWrite(ctx context.Context, status string)
}

// securityMetrics implements SecurityMetrics using OpenTelemetry metrics.
type securityMetrics struct {
	checkCounter   metric.Int64Counter
	requestCounter metric.Int64Counter
	durationHisto  metric.Float64Histogram
	auditCounter   metric.Int64Counter
}

// NewSecurityMetrics creates a SecurityMetrics implementation using the provided
// meter provider. The namespace parameter prefixes all metric names.
// Returns error if meters cannot be initialized.
func NewSecurityMetrics(meterProvider metric.MeterProvider, namespace string) (SecurityMetrics, error) {
	meter := meterProvider.Meter(namespace)

	checkCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_security_checks_total", namespace),
		metric.WithDescription("Total number of security check evaluations"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create check counter: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_requests_total", namespace),
		metric.WithDescription("Total number of wrapped handler invocations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_request_duration_seconds", namespace),
		metric.WithDescription("Duration of wrapped handler invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	auditCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_audit_writes_total", namespace),
		metric.WithDescription("Total number of audit store writes"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit counter: %w", err)
	}

	return &securityMetrics{
		checkCounter:   checkCounter,
		requestCounter: requestCounter,
		durationHisto:  durationHisto,
		auditCounter:   auditCounter,
	}, nil
}

// RecordCheck records a security check outcome.
func (s *securityMetrics) RecordCheck(ctx context.Context, check, outcome string) {
	s.checkCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

// RecordRequest records a wrapped handler invocation.
func (s *securityMetrics) RecordRequest(ctx context.Context, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("status", strconv.Itoa(status)),
	)
	s.requestCounter.Add(ctx, 1, attrs)
	s.durationHisto.Record(ctx, duration.Seconds(), attrs)
}

// RecordAuditWrite records an audit store write outcome.
func (s *securityMetrics) RecordAuditWrite(ctx context.Context, status string) {
	s.auditCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// noopMetrics discards all recordings. Used when metrics are disabled.
type noopMetrics struct{}

// NewNoopMetrics returns a SecurityMetrics that records nothing.
func NewNoopMetrics() SecurityMetrics {
	return noopMetrics{}
}

func (noopMetrics) RecordCheck(context.Context, string, string)       {}
func (noopMetrics) RecordRequest(context.Context, int, time.Duration) {}
func (noopMetrics) RecordAuditWrite(context.Context, string)          {}
