// Package issues persists newsletter issue content. An issue row is written
// once, inside the submission transaction, and read many times by delivery
// workers rendering outbound mail.
package issues

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Issue is one published newsletter issue.
type Issue struct {
	ID          uuid.UUID
	Title       string
	TextContent string
	HTMLContent string
	PublishedAt time.Time
}

// Catalog reads and writes newsletter_issues.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// Insert stages the issue on the caller's transaction so the content write
// commits atomically with the guard row and the delivery fan-out.
func (c *Catalog) Insert(ctx context.Context, tx pgx.Tx, issue Issue) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO newsletter_issues
			(newsletter_issue_id, title, text_content, html_content, published_at)
		VALUES ($1, $2, $3, $4, now())`,
		issue.ID, issue.Title, issue.TextContent, issue.HTMLContent,
	)
	if err != nil {
		return fmt.Errorf("insert newsletter issue: %w", err)
	}
	return nil
}

// Get loads the issue content for delivery rendering.
func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (Issue, error) {
	var issue Issue
	err := c.pool.QueryRow(ctx, `
		SELECT newsletter_issue_id, title, text_content, html_content, published_at
		FROM newsletter_issues
		WHERE newsletter_issue_id = $1`,
		id,
	).Scan(&issue.ID, &issue.Title, &issue.TextContent, &issue.HTMLContent, &issue.PublishedAt)
	if err != nil {
		return Issue{}, fmt.Errorf("get newsletter issue %s: %w", id, err)
	}
	return issue, nil
}
