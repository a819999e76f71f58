// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/guardrail/cmd/app/commands"
)

func main() {
	cmd := &cli.Command{
		Name:    "app",
		Usage:   "Request security and audit pipeline",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunMigrations()
				},
			},
			{
				Name:  "clean-audit-logs",
				Usage: "Delete audit events older than specified days",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "days",
						Aliases:  []string{"d"},
						Required: true,
						Usage:    "Delete audit events older than this many days",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunCleanAuditLogs(ctx, cmd.Int("days"), cmd.String("format"))
				},
			},
			{
				Name:  "stats",
				Usage: "Aggregate audit events over a recent window",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "hours",
						Aliases: []string{"H"},
						Value:   24,
						Usage:   "Aggregate events from the last N hours",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunStats(ctx, cmd.Int("hours"), cmd.String("format"))
				},
			},
			{
				Name:  "error-groups",
				Usage: "List deduplicated error groups by most recent occurrence",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   20,
						Usage:   "Maximum number of groups to list",
					},
					&cli.IntFlag{
						Name:    "offset",
						Aliases: []string{"o"},
						Value:   0,
						Usage:   "Number of groups to skip",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunErrorGroups(ctx, cmd.Int("offset"), cmd.Int("limit"), cmd.String("format"))
				},
			},
			{
				Name:  "send-test-alert",
				Usage: "Deliver a test digest to every configured alert channel",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunSendTestAlert(ctx)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
