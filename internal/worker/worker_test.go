package worker

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/austindbirch/postroom/internal/issues"
	"github.com/austindbirch/postroom/internal/logging"
	"github.com/austindbirch/postroom/internal/mailer"
	"github.com/austindbirch/postroom/internal/queue"
)

type fakeQueue struct {
	pending   []*queue.ClaimedTask
	completed []*queue.ClaimedTask
	claimErr  error
}

func (q *fakeQueue) TryClaimOne(ctx context.Context) (*queue.ClaimedTask, error) {
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	if len(q.pending) == 0 {
		return nil, nil
	}
	task := q.pending[0]
	q.pending = q.pending[1:]
	return task, nil
}

func (q *fakeQueue) Complete(ctx context.Context, task *queue.ClaimedTask) error {
	q.completed = append(q.completed, task)
	return nil
}

func (q *fakeQueue) Release(ctx context.Context, task *queue.ClaimedTask) error {
	q.pending = append(q.pending, task)
	return nil
}

type fakeIssues struct {
	issue issues.Issue
	err   error
}

func (f *fakeIssues) Get(ctx context.Context, id uuid.UUID) (issues.Issue, error) {
	if f.err != nil {
		return issues.Issue{}, f.err
	}
	return f.issue, nil
}

type fakeSender struct {
	sent     []mailer.Email
	failNext int
}

func (s *fakeSender) Send(ctx context.Context, email mailer.Email) error {
	if s.failNext > 0 {
		s.failNext--
		return mailer.ErrSendFailed
	}
	s.sent = append(s.sent, email)
	return nil
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter("worker-test", &bytes.Buffer{})
}

func newTestWorker(q TaskQueue, ig IssueGetter, s mailer.Sender) *Worker {
	return New(q, ig, s, testLogger(), time.Millisecond, time.Millisecond)
}

func TestExecuteOneDeliversAndCompletes(t *testing.T) {
	issueID := uuid.New()
	q := &fakeQueue{pending: []*queue.ClaimedTask{
		{IssueID: issueID, Recipient: "reader@example.com"},
	}}
	ig := &fakeIssues{issue: issues.Issue{
		ID:          issueID,
		Title:       "Issue #1",
		TextContent: "plain",
		HTMLContent: "<p>rich</p>",
	}}
	sender := &fakeSender{}

	outcome, err := newTestWorker(q, ig, sender).ExecuteOne(context.Background())
	if err != nil {
		t.Fatalf("ExecuteOne() unexpected error: %v", err)
	}
	if outcome != TaskCompleted {
		t.Errorf("outcome = %v, want TaskCompleted", outcome)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.Recipient != "reader@example.com" || got.Subject != "Issue #1" ||
		got.HTMLBody != "<p>rich</p>" || got.TextBody != "plain" {
		t.Errorf("sent email = %+v", got)
	}
	if len(q.completed) != 1 {
		t.Errorf("completed %d tasks, want 1", len(q.completed))
	}
	if len(q.pending) != 0 {
		t.Errorf("%d tasks still pending, want 0", len(q.pending))
	}
}

func TestExecuteOneEmptyQueue(t *testing.T) {
	q := &fakeQueue{}
	outcome, err := newTestWorker(q, &fakeIssues{}, &fakeSender{}).ExecuteOne(context.Background())
	if err != nil {
		t.Fatalf("ExecuteOne() unexpected error: %v", err)
	}
	if outcome != EmptyQueue {
		t.Errorf("outcome = %v, want EmptyQueue", outcome)
	}
}

func TestExecuteOneTransportFailureReleasesForRetry(t *testing.T) {
	issueID := uuid.New()
	q := &fakeQueue{pending: []*queue.ClaimedTask{
		{IssueID: issueID, Recipient: "reader@example.com"},
	}}
	ig := &fakeIssues{issue: issues.Issue{ID: issueID, Title: "Issue #1"}}
	sender := &fakeSender{failNext: 1}
	w := newTestWorker(q, ig, sender)

	// The failed attempt must put the task back.
	if _, err := w.ExecuteOne(context.Background()); !errors.Is(err, mailer.ErrSendFailed) {
		t.Fatalf("first attempt error = %v, want ErrSendFailed", err)
	}
	if len(q.pending) != 1 {
		t.Fatalf("%d tasks pending after failure, want 1", len(q.pending))
	}
	if len(q.completed) != 0 {
		t.Fatalf("%d tasks completed after failure, want 0", len(q.completed))
	}

	// A later claim retries and succeeds.
	if _, err := w.ExecuteOne(context.Background()); err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d emails after retry, want 1", len(sender.sent))
	}
	if len(q.completed) != 1 {
		t.Errorf("%d tasks completed after retry, want 1", len(q.completed))
	}
}

func TestExecuteOneInvalidRecipientReleasedNotSent(t *testing.T) {
	q := &fakeQueue{pending: []*queue.ClaimedTask{
		{IssueID: uuid.New(), Recipient: "not-an-address"},
	}}
	sender := &fakeSender{}

	_, err := newTestWorker(q, &fakeIssues{}, sender).ExecuteOne(context.Background())
	if err == nil {
		t.Fatal("ExecuteOne() expected error for invalid recipient")
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(sender.sent))
	}
	if len(q.pending) != 1 {
		t.Errorf("%d tasks pending, want 1 (released, not discarded)", len(q.pending))
	}
	if len(q.completed) != 0 {
		t.Errorf("%d tasks completed, want 0", len(q.completed))
	}
}

func TestExecuteOneIssueLookupFailureReleases(t *testing.T) {
	q := &fakeQueue{pending: []*queue.ClaimedTask{
		{IssueID: uuid.New(), Recipient: "reader@example.com"},
	}}
	ig := &fakeIssues{err: errors.New("connection refused")}
	sender := &fakeSender{}

	if _, err := newTestWorker(q, ig, sender).ExecuteOne(context.Background()); err == nil {
		t.Fatal("ExecuteOne() expected error")
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(sender.sent))
	}
	if len(q.pending) != 1 {
		t.Errorf("%d tasks pending, want 1", len(q.pending))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := newTestWorker(&fakeQueue{}, &fakeIssues{}, &fakeSender{})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRunDrainsQueueThenBacksOff(t *testing.T) {
	issueID := uuid.New()
	q := &fakeQueue{pending: []*queue.ClaimedTask{
		{IssueID: issueID, Recipient: "a@example.com"},
		{IssueID: issueID, Recipient: "b@example.com"},
	}}
	ig := &fakeIssues{issue: issues.Issue{ID: issueID, Title: "Issue #1"}}
	sender := &fakeSender{}
	w := newTestWorker(q, ig, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	if len(sender.sent) != 2 {
		t.Errorf("sent %d emails, want 2", len(sender.sent))
	}
	if len(q.completed) != 2 {
		t.Errorf("completed %d tasks, want 2", len(q.completed))
	}
}
