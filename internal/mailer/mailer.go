// Package mailer sends rendered newsletter issues to individual recipients.
package mailer

import (
	"context"
	"errors"
)

var (
	// ErrSendFailed wraps any transport-level delivery failure. Callers treat
	// it as transient and retry the task later.
	ErrSendFailed = errors.New("failed to send email")

	ErrInvalidConfig = errors.New("invalid mailer config")
)

// Email is one outbound message.
type Email struct {
	Recipient string
	Subject   string
	HTMLBody  string
	TextBody  string
}

// Sender delivers a single email. Send is called once per delivery task and
// must be safe for concurrent use across workers.
type Sender interface {
	Send(ctx context.Context, email Email) error
}
