// Package subscribers reads the confirmed subscriber list and validates the
// addresses stored on it. Addresses were validated at signup, but the rows
// are old data by delivery time and a malformed one must not wedge a worker.
package subscribers

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidAddress marks a stored recipient that no longer parses as a
// deliverable email address.
var ErrInvalidAddress = errors.New("invalid email address")

// Repo reads the subscriptions table.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ConfirmedEmails returns the addresses of every confirmed subscriber.
// Unconfirmed signups never receive issues.
func (r *Repo) ConfirmedEmails(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT email FROM subscriptions WHERE status = 'confirmed'`)
	if err != nil {
		return nil, fmt.Errorf("list confirmed subscribers: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan subscriber email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate confirmed subscribers: %w", err)
	}
	return emails, nil
}

// ParseAddress validates an email address for outbound delivery. Go's mail
// parser accepts some shapes SMTP relays reject, so the domain gets an extra
// structural check.
func ParseAddress(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, value)
	}

	email := addr.Address
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, value)
	}
	domain := parts[1]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, value)
	}
	return email, nil
}
