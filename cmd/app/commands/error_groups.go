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

// RunErrorGroups lists deduplicated error groups ordered by most recent
// occurrence.
//
// Requirements: Database must be migrated and accessible.
func RunErrorGroups(ctx context.Context, offset, limit int, format string) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be a positive number, got: %d", limit)
	}
	if offset < 0 {
		return fmt.Errorf("offset must not be negative, got: %d", offset)
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("listing error groups",
		slog.Int("offset", offset),
		slog.Int("limit", limit),
	)

	defer closeContainer(container, logger)

	auditLogger, err := container.AuditLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	groups, err := auditLogger.ErrorGroups(ctx, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list error groups: %w", err)
	}

	if format == "json" {
		outputGroupsJSON(os.Stdout, groups)
	} else {
		outputGroupsText(os.Stdout, groups)
	}

	return nil
}

// outputGroupsText outputs the groups in human-readable text format.
func outputGroupsText(w io.Writer, groups []*auditDomain.ErrorGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No error groups found")
		return
	}

	for _, group := range groups {
		fmt.Fprintf(w, "%s  [%s] %s\n", group.Fingerprint, group.Level, group.Description)
		fmt.Fprintf(w, "  component: %s, count: %d, first seen: %s, last seen: %s\n",
			group.Component,
			group.Count,
			group.FirstSeen.Format(time.RFC3339),
			group.LastSeen.Format(time.RFC3339),
		)
	}
}

// outputGroupsJSON outputs the groups in JSON format for machine consumption.
func outputGroupsJSON(w io.Writer, groups []*auditDomain.ErrorGroup) {
	jsonBytes, err := json.MarshalIndent(groups, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(w, string(jsonBytes))
}
