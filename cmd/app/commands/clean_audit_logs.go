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
	"github.com/allisson/guardrail/internal/config"
)

// RunCleanAuditLogs deletes audit events and dedup groups older than the
// specified number of days. Supports text and JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunCleanAuditLogs(ctx context.Context, days int, format string) error {
	// Validate days parameter
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}

	// Load configuration
	cfg := config.Load()

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("cleaning audit logs",
		slog.Int("days", days),
	)

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	// Get audit logger from container
	auditLogger, err := container.AuditLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	// Execute deletion
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	count, err := auditLogger.Purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete audit events: %w", err)
	}

	// Output result based on format
	if format == "json" {
		outputCleanJSON(os.Stdout, count, days)
	} else {
		outputCleanText(os.Stdout, count, days)
	}

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Int("days", days),
	)

	return nil
}

// outputCleanText outputs the result in human-readable text format.
func outputCleanText(w io.Writer, count int64, days int) {
	fmt.Fprintf(w, "Successfully deleted %d audit event(s) older than %d day(s)\n", count, days)
}

// outputCleanJSON outputs the result in JSON format for machine consumption.
func outputCleanJSON(w io.Writer, count int64, days int) {
	result := map[string]interface{}{
		"count": count,
		"days":  days,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(w, string(jsonBytes))
}
