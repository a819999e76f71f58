package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/allisson/guardrail/internal/alert"
	"github.com/allisson/guardrail/internal/app"
	"github.com/allisson/guardrail/internal/config"
)

// RunSendTestAlert delivers a sample digest to every configured alert channel
// synchronously, so misconfigured channels surface immediately.
func RunSendTestAlert(ctx context.Context) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)

	logger := container.Logger()
	defer closeContainer(container, logger)

	if cfg.AlertWebhookURL == "" && cfg.AlertEmailAPIKey == "" {
		return fmt.Errorf("no alert channels configured")
	}

	dispatcher := container.AlertDispatcher()

	digest := alert.FormatDigest(alert.Snapshot{
		GeneratedAt: time.Now().UTC(),
		Errors: []alert.Finding{
			{Component: "general", Message: "test alert delivery", Count: 1},
		},
	})

	dispatcher.Send(ctx, digest)

	fmt.Println("Test digest sent to all configured channels")
	return nil
}
