package alert

import (
	"context"
	"strings"

	"github.com/resend/resend-go/v2"

	apperrors "github.com/allisson/guardrail/internal/errors"
)

// EmailNotifier delivers digests by email via Resend.
type EmailNotifier struct {
	client *resend.Client
	from   string
	to     []string
}

// NewEmailNotifier creates an email notifier.
func NewEmailNotifier(apiKey, from string, to []string) *EmailNotifier {
	return &EmailNotifier{
		client: resend.NewClient(apiKey),
		from:   from,
		to:     to,
	}
}

// Name implements Notifier.
func (e *EmailNotifier) Name() string { return "email" }

// Notify sends one digest email. The digest is pre-formatted text; the
// subject is derived from its first line.
func (e *EmailNotifier) Notify(ctx context.Context, digest string) error {
	subject := digest
	if idx := strings.IndexByte(digest, '\n'); idx > 0 {
		subject = digest[:idx]
	}

	params := &resend.SendEmailRequest{
		From:    e.from,
		To:      e.to,
		Subject: subject,
		Text:    digest,
	}

	if _, err := e.client.Emails.SendWithContext(ctx, params); err != nil {
		return apperrors.Wrap(err, "failed to send digest email")
	}

	return nil
}
