package mailer

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/austindbirch/postroom/internal/config"
)

// PostmarkSender delivers mail through Postmark's transactional API.
type PostmarkSender struct {
	client *postmark.Client
	cfg    config.Mail
}

// NewPostmarkSender builds a Postmark-backed sender. Tokens and sender
// address are validated up front so a misconfigured worker fails at startup
// instead of poisoning every task it claims.
func NewPostmarkSender(cfg config.Mail) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: server token is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}

	client := postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	if cfg.BaseURL != "" {
		// Points at a fake Postmark in local and test environments.
		client.BaseURL = cfg.BaseURL
	}
	return &PostmarkSender{client: client, cfg: cfg}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, email Email) error {
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.cfg.SenderEmail,
		ReplyTo:  s.cfg.ReplyToEmail,
		To:       email.Recipient,
		Subject:  email.Subject,
		HTMLBody: email.HTMLBody,
		TextBody: email.TextBody,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%w: postmark error %d: %s", ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return nil
}
