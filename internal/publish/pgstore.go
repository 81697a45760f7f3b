package publish

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/austindbirch/postroom/internal/idempotency"
	"github.com/austindbirch/postroom/internal/issues"
	"github.com/austindbirch/postroom/internal/queue"
)

// PgStore composes the idempotency guard, the issue catalog and the delivery
// queue over one shared transaction, so the guard row, the issue content and
// the task fan-out commit or vanish together.
type PgStore struct {
	guard   *idempotency.Store
	catalog *issues.Catalog
	queue   *queue.Queue
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{
		guard:   idempotency.NewStore(pool),
		catalog: issues.NewCatalog(pool),
		queue:   queue.New(pool),
	}
}

func (s *PgStore) Begin(ctx context.Context, actorID uuid.UUID, key idempotency.Key) (Submission, *idempotency.Response, error) {
	scope, saved, err := s.guard.Begin(ctx, actorID, key)
	if err != nil {
		return nil, nil, err
	}
	if saved != nil {
		return nil, saved, nil
	}
	return &pgSubmission{scope: scope, store: s}, nil, nil
}

type pgSubmission struct {
	scope *idempotency.Scope
	store *PgStore
}

func (p *pgSubmission) InsertIssue(ctx context.Context, issue issues.Issue) error {
	return p.store.catalog.Insert(ctx, p.scope.Tx(), issue)
}

func (p *pgSubmission) EnqueueAll(ctx context.Context, issueID uuid.UUID, recipients []string) error {
	return p.store.queue.EnqueueAll(ctx, p.scope.Tx(), issueID, recipients)
}

func (p *pgSubmission) Commit(ctx context.Context, resp idempotency.Response) (idempotency.Response, error) {
	return p.store.guard.CommitWithResponse(ctx, p.scope, resp)
}

func (p *pgSubmission) Rollback(ctx context.Context) error {
	return p.scope.Rollback(ctx)
}
