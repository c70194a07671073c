package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"pgsentry/internal/config"
)

// ResendSender sends mail through the Resend API.
type ResendSender struct {
	client *resend.Client
	logger *slog.Logger
}

// NewResendSender creates a Resend sender.
func NewResendSender(apiKey string, logger *slog.Logger) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), logger: logger}
}

func (s *ResendSender) Name() string { return config.ProviderResend }

// Send delivers the email.
func (s *ResendSender) Send(ctx context.Context, email *Email) error {
	if len(email.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	params := &resend.SendEmailRequest{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}

	result, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}

	s.logger.Debug("email sent via resend", "email_id", result.Id, "to", email.To)
	return nil
}
