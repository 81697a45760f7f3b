// Package publish coordinates a newsletter submission: acquire the
// idempotency guard, write the issue, fan out one delivery task per confirmed
// subscriber, and capture the acknowledgment, all in one atomic scope.
// Duplicate submissions for the same (actor, key) replay the captured
// acknowledgment without creating anything.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/austindbirch/postroom/internal/idempotency"
	"github.com/austindbirch/postroom/internal/issues"
	"github.com/austindbirch/postroom/internal/logging"
	"github.com/austindbirch/postroom/internal/metrics"
	"github.com/austindbirch/postroom/internal/tracing"
)

// ErrValidation marks a submission rejected before any store write. Handlers
// map it to a client error.
var ErrValidation = errors.New("invalid submission")

// IssueContent is the caller-supplied issue payload. All fields are required.
type IssueContent struct {
	Title       string
	HTMLContent string
	TextContent string
}

// Submission is one open, not yet finalized submission scope. Exactly one of
// Commit or Rollback must be called.
type Submission interface {
	InsertIssue(ctx context.Context, issue issues.Issue) error
	EnqueueAll(ctx context.Context, issueID uuid.UUID, recipients []string) error
	Commit(ctx context.Context, resp idempotency.Response) (idempotency.Response, error)
	Rollback(ctx context.Context) error
}

// Store opens submission scopes. Begin returns either an open Submission
// (first time this (actor, key) is seen) or the previously captured response
// (duplicate), never both.
type Store interface {
	Begin(ctx context.Context, actorID uuid.UUID, key idempotency.Key) (Submission, *idempotency.Response, error)
}

// SubscriberSource lists the recipients of a new issue.
type SubscriberSource interface {
	ConfirmedEmails(ctx context.Context) ([]string, error)
}

// Service is the submission coordinator.
type Service struct {
	store        Store
	subscribers  SubscriberSource
	logger       *logging.Logger
	maxKeyLength int
}

func NewService(store Store, subscribers SubscriberSource, logger *logging.Logger, maxKeyLength int) *Service {
	return &Service{
		store:        store,
		subscribers:  subscribers,
		logger:       logger,
		maxKeyLength: maxKeyLength,
	}
}

// Publish runs one submission end to end and returns the acknowledgment to
// hand back to the caller. The same (actorID, rawKey) pair always yields a
// byte-identical response, no matter how often or how concurrently it is
// submitted.
func (s *Service) Publish(ctx context.Context, actorID uuid.UUID, rawKey string, content IssueContent) (idempotency.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "publish.Publish")
	defer span.End()

	log := s.logger.WithContext(ctx).WithActor(actorID.String())

	key, err := idempotency.ParseKey(rawKey, s.maxKeyLength)
	if err != nil {
		metrics.RecordSubmission("rejected")
		return idempotency.Response{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if content.Title == "" || content.HTMLContent == "" || content.TextContent == "" {
		metrics.RecordSubmission("rejected")
		return idempotency.Response{}, fmt.Errorf("%w: title, html and text content are all required", ErrValidation)
	}

	sub, saved, err := s.store.Begin(ctx, actorID, key)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordSubmission("error")
		return idempotency.Response{}, err
	}
	if saved != nil {
		metrics.RecordSubmission("duplicate")
		log.Info("duplicate submission, replaying saved response")
		return *saved, nil
	}

	issueID := uuid.New()
	log = log.WithIssue(issueID.String())

	if err := sub.InsertIssue(ctx, issues.Issue{
		ID:          issueID,
		Title:       content.Title,
		HTMLContent: content.HTMLContent,
		TextContent: content.TextContent,
	}); err != nil {
		return idempotency.Response{}, s.fail(ctx, sub, err)
	}

	recipients, err := s.subscribers.ConfirmedEmails(ctx)
	if err != nil {
		return idempotency.Response{}, s.fail(ctx, sub, err)
	}

	if err := sub.EnqueueAll(ctx, issueID, recipients); err != nil {
		return idempotency.Response{}, s.fail(ctx, sub, err)
	}

	committed, err := sub.Commit(ctx, acknowledgment())
	if err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordSubmission("error")
		return idempotency.Response{}, err
	}

	metrics.RecordSubmission("accepted")
	metrics.RecordFanout(len(recipients))
	log.WithField("recipients", len(recipients)).Info("newsletter issue accepted")
	return committed, nil
}

// fail rolls the open scope back so no partial issue or task state persists.
func (s *Service) fail(ctx context.Context, sub Submission, err error) error {
	tracing.SetSpanError(ctx, err)
	metrics.RecordSubmission("error")
	if rbErr := sub.Rollback(ctx); rbErr != nil {
		s.logger.WithContext(ctx).WithError(rbErr).Error("failed to roll back submission scope")
	}
	return err
}

// acknowledgment is the one-time success response, captured on the guard row
// and replayed verbatim for duplicates.
func acknowledgment() idempotency.Response {
	return idempotency.Response{
		Status: 303,
		Headers: []idempotency.Header{
			{Name: "Location", Value: "/admin/newsletters"},
			{Name: "Content-Type", Value: "text/plain; charset=utf-8"},
		},
		Body: []byte("The newsletter issue has been accepted - emails will go out shortly.\n"),
	}
}
