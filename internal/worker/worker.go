// Package worker runs the delivery loop: claim one queued task, render the
// issue, send the email, then resolve the task. Completion removes a task
// permanently; any failure releases it for a later retry, so delivery is
// at-least-once per queued recipient.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/austindbirch/postroom/internal/issues"
	"github.com/austindbirch/postroom/internal/logging"
	"github.com/austindbirch/postroom/internal/mailer"
	"github.com/austindbirch/postroom/internal/metrics"
	"github.com/austindbirch/postroom/internal/queue"
	"github.com/austindbirch/postroom/internal/subscribers"
	"github.com/austindbirch/postroom/internal/tracing"
)

// Outcome reports what one poll of the queue did.
type Outcome int

const (
	// TaskCompleted means a task was claimed and resolved, successfully or
	// not. The loop polls again immediately.
	TaskCompleted Outcome = iota
	// EmptyQueue means no task was available to claim.
	EmptyQueue
)

// TaskQueue is the claim side of the delivery queue.
type TaskQueue interface {
	TryClaimOne(ctx context.Context) (*queue.ClaimedTask, error)
	Complete(ctx context.Context, task *queue.ClaimedTask) error
	Release(ctx context.Context, task *queue.ClaimedTask) error
}

// IssueGetter loads issue content for rendering.
type IssueGetter interface {
	Get(ctx context.Context, id uuid.UUID) (issues.Issue, error)
}

// Worker is one delivery loop. Several run concurrently per process; the
// queue's row locks keep them from claiming the same task.
type Worker struct {
	queue  TaskQueue
	issues IssueGetter
	sender mailer.Sender
	logger *logging.Logger

	emptyBackoff time.Duration
	errorBackoff time.Duration
}

func New(q TaskQueue, ig IssueGetter, sender mailer.Sender, logger *logging.Logger, emptyBackoff, errorBackoff time.Duration) *Worker {
	return &Worker{
		queue:        q,
		issues:       ig,
		sender:       sender,
		logger:       logger,
		emptyBackoff: emptyBackoff,
		errorBackoff: errorBackoff,
	}
}

// Run polls the queue until ctx is cancelled. An empty queue backs off for
// emptyBackoff, an error for errorBackoff, and a resolved task triggers an
// immediate re-poll.
func (w *Worker) Run(ctx context.Context) error {
	for {
		outcome, err := w.ExecuteOne(ctx)
		switch {
		case err != nil:
			w.logger.WithContext(ctx).WithError(err).Error("delivery attempt failed")
			if err := sleep(ctx, w.errorBackoff); err != nil {
				return err
			}
		case outcome == EmptyQueue:
			if err := sleep(ctx, w.emptyBackoff); err != nil {
				return err
			}
		default:
			// Drain the queue without pausing between tasks.
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// ExecuteOne claims and resolves at most one delivery task.
func (w *Worker) ExecuteOne(ctx context.Context) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "worker.ExecuteOne")
	defer span.End()

	task, err := w.queue.TryClaimOne(ctx)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return EmptyQueue, err
	}
	if task == nil {
		return EmptyQueue, nil
	}

	log := w.logger.WithContext(ctx).
		WithIssue(task.IssueID.String()).
		WithRecipient(task.Recipient)

	recipient, err := subscribers.ParseAddress(task.Recipient)
	if err != nil {
		// The stored address no longer validates. The task goes back to the
		// queue rather than being dropped, so it will be claimed and fail
		// again until the row is cleaned up out of band.
		log.WithError(err).Error("skipping delivery to invalid recipient")
		metrics.RecordDelivery("invalid_recipient", 0)
		if relErr := w.queue.Release(ctx, task); relErr != nil {
			return TaskCompleted, relErr
		}
		return TaskCompleted, err
	}

	issue, err := w.issues.Get(ctx, task.IssueID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		if relErr := w.queue.Release(ctx, task); relErr != nil {
			return TaskCompleted, relErr
		}
		return TaskCompleted, fmt.Errorf("load issue for delivery: %w", err)
	}

	start := time.Now()
	err = w.sender.Send(ctx, mailer.Email{
		Recipient: recipient,
		Subject:   issue.Title,
		HTMLBody:  issue.HTMLContent,
		TextBody:  issue.TextContent,
	})
	if err != nil {
		tracing.SetSpanError(ctx, err)
		log.WithError(err).Error("failed to deliver issue")
		metrics.RecordDelivery("failed", time.Since(start))
		if relErr := w.queue.Release(ctx, task); relErr != nil {
			return TaskCompleted, relErr
		}
		return TaskCompleted, err
	}

	if err := w.queue.Complete(ctx, task); err != nil {
		// The send succeeded but the delete did not commit. The task stays
		// queued and the recipient may get the issue twice; an accepted cost
		// of the at-least-once model.
		tracing.SetSpanError(ctx, err)
		return TaskCompleted, fmt.Errorf("complete delivered task: %w", err)
	}

	metrics.RecordDelivery("delivered", time.Since(start))
	log.Info("issue delivered")
	return TaskCompleted, nil
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
