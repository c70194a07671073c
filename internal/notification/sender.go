package notification

import (
	"context"
	"fmt"
	"log/slog"

	"pgsentry/internal/config"
)

// Sender delivers a rendered email.
type Sender interface {
	Name() string
	Send(ctx context.Context, email *Email) error
}

// NewSender returns the sender for the configured provider.
func NewSender(cfg *config.NotificationConfig, logger *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case config.ProviderStub, "":
		return NewStubSender(logger), nil
	case config.ProviderSMTP:
		return NewSMTPSender(&cfg.SMTP, logger), nil
	case config.ProviderResend:
		return NewResendSender(cfg.Resend.APIKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown notification provider %q", cfg.Provider)
	}
}

// StubSender logs emails instead of sending them.
type StubSender struct {
	logger *slog.Logger
}

// NewStubSender creates a stub sender.
func NewStubSender(logger *slog.Logger) *StubSender {
	return &StubSender{logger: logger}
}

func (s *StubSender) Name() string { return config.ProviderStub }

// Send logs the email.
func (s *StubSender) Send(_ context.Context, email *Email) error {
	s.logger.Info("STUB: would send alert email",
		"to", email.To,
		"subject", email.Subject,
	)
	return nil
}
