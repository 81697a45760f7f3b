// Package queue is the durable delivery queue: one row per (issue, recipient)
// in issue_delivery_queue. Claiming locks a row without removing it, so a
// worker crash releases the task back to the queue instead of losing it.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClaimedTask is a delivery task held under a row lock. It stays claimed
// until Complete or Release; dropping the connection releases it too.
type ClaimedTask struct {
	IssueID   uuid.UUID
	Recipient string

	tx pgx.Tx
}

// Queue reads and writes issue_delivery_queue.
type Queue struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// EnqueueAll stages one delivery task per recipient on the caller's
// transaction. The fan-out commits atomically with the issue content write.
func (q *Queue) EnqueueAll(ctx context.Context, tx pgx.Tx, issueID uuid.UUID, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(recipients))
	for _, r := range recipients {
		rows = append(rows, []any{issueID, r})
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"issue_delivery_queue"},
		[]string{"newsletter_issue_id", "subscriber_email"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("enqueue delivery tasks: %w", err)
	}
	return nil
}

// TryClaimOne claims a single unclaimed task, skipping rows other workers
// hold. Returns (nil, nil) when the queue has nothing available.
func (q *Queue) TryClaimOne(ctx context.Context) (*ClaimedTask, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}

	task := &ClaimedTask{tx: tx}
	err = tx.QueryRow(ctx, `
		SELECT newsletter_issue_id, subscriber_email
		FROM issue_delivery_queue
		FOR UPDATE
		SKIP LOCKED
		LIMIT 1`,
	).Scan(&task.IssueID, &task.Recipient)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return nil, nil
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("claim delivery task: %w", err)
	}
	return task, nil
}

// Complete removes the claimed task and commits, in that order. The row lock
// is held until the delete is durable, so no other worker can pick the task
// up in between.
func (q *Queue) Complete(ctx context.Context, task *ClaimedTask) error {
	_, err := task.tx.Exec(ctx, `
		DELETE FROM issue_delivery_queue
		WHERE newsletter_issue_id = $1 AND subscriber_email = $2`,
		task.IssueID, task.Recipient,
	)
	if err != nil {
		_ = task.tx.Rollback(ctx)
		return fmt.Errorf("delete completed task: %w", err)
	}
	if err := task.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit completed task: %w", err)
	}
	return nil
}

// Release returns the task to the queue untouched. A later claim, by this
// worker or any other, will retry it.
func (q *Queue) Release(ctx context.Context, task *ClaimedTask) error {
	if err := task.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("release claimed task: %w", err)
	}
	return nil
}

// Depth counts pending delivery tasks, claimed ones included.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	var n int64
	if err := q.pool.QueryRow(ctx, `SELECT count(*) FROM issue_delivery_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue depth: %w", err)
	}
	return n, nil
}
