package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/allisson/guardrail/internal/app"
	auditDomain "github.com/allisson/guardrail/internal/audit/domain"
	"github.com/allisson/guardrail/internal/config"
)

// RunStats aggregates audit events from the last N hours and prints the
// totals, per-type and per-level breakdowns, failure rate and top users.
//
// Requirements: Database must be migrated and accessible.
func RunStats(ctx context.Context, hours int, format string) error {
	if hours <= 0 {
		return fmt.Errorf("hours must be a positive number, got: %d", hours)
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("aggregating audit events", slog.Int("hours", hours))

	defer closeContainer(container, logger)

	auditLogger, err := container.AuditLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)

	stats, err := auditLogger.GetStats(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to aggregate audit events: %w", err)
	}

	if format == "json" {
		outputStatsJSON(os.Stdout, stats, from, to)
	} else {
		outputStatsText(os.Stdout, stats, from, to)
	}

	return nil
}

// outputStatsText outputs the aggregation in human-readable text format.
func outputStatsText(w io.Writer, stats *auditDomain.Stats, from, to time.Time) {
	fmt.Fprintf(w, "Audit statistics from %s to %s\n", from.Format(time.RFC3339), to.Format(time.RFC3339))
	fmt.Fprintf(w, "Total events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Failure rate: %.2f%%\n", stats.FailureRate*100)

	if len(stats.EventsByType) > 0 {
		fmt.Fprintln(w, "\nEvents by type:")
		for eventType, count := range stats.EventsByType {
			fmt.Fprintf(w, "  %-20s %d\n", eventType, count)
		}
	}

	if len(stats.EventsByLevel) > 0 {
		fmt.Fprintln(w, "\nEvents by level:")
		for level, count := range stats.EventsByLevel {
			fmt.Fprintf(w, "  %-20s %d\n", level, count)
		}
	}

	if len(stats.TopUsers) > 0 {
		fmt.Fprintln(w, "\nTop users:")
		for _, user := range stats.TopUsers {
			fmt.Fprintf(w, "  %-36s %d event(s), last at %s\n",
				user.UserID, user.EventCount, user.LastEvent.Format(time.RFC3339))
		}
	}
}

// outputStatsJSON outputs the aggregation in JSON format for machine consumption.
func outputStatsJSON(w io.Writer, stats *auditDomain.Stats, from, to time.Time) {
	result := map[string]interface{}{
		"from":            from.Format(time.RFC3339),
		"to":              to.Format(time.RFC3339),
		"total_events":    stats.TotalEvents,
		"events_by_type":  stats.EventsByType,
		"events_by_level": stats.EventsByLevel,
		"failure_rate":    stats.FailureRate,
		"top_users":       stats.TopUsers,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(w, string(jsonBytes))
}
