package mailer

import (
	"context"

	"github.com/austindbirch/postroom/internal/logging"
)

// DevSender logs outgoing mail instead of delivering it. Used when MAIL_MODE
// is "dev" so the full pipeline runs locally without a Postmark account.
type DevSender struct {
	logger *logging.Logger
}

func NewDevSender(logger *logging.Logger) *DevSender {
	return &DevSender{logger: logger}
}

func (s *DevSender) Send(ctx context.Context, email Email) error {
	s.logger.WithContext(ctx).
		WithRecipient(email.Recipient).
		WithField("subject", email.Subject).
		WithField("body_bytes", len(email.HTMLBody)+len(email.TextBody)).
		Info("dev mailer: email not sent")
	return nil
}
