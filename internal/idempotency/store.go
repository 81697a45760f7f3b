package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEmptyRecord means an idempotency record exists but its response fields
// were never filled in. With callers that always finalize the scope they open
// this cannot happen: a concurrent duplicate blocks on the guard insert until
// the first scope commits (response populated) or rolls back (record gone).
var ErrEmptyRecord = errors.New("idempotency record exists but has no captured response")

// Store is the Postgres-backed idempotency guard. The guard row doubles as a
// per-(actor, key) lock: it is inserted inside a transaction that stays open
// for the whole submission, so a concurrent duplicate insert blocks at the
// unique index until the first transaction finalizes.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Scope is an open transactional unit returned by Begin. It must be finalized
// exactly once, either by Store.CommitWithResponse or by Rollback. A crash in
// between drops the connection and with it the uncommitted guard row; the
// retried submission then starts fresh.
type Scope struct {
	tx      pgx.Tx
	actorID uuid.UUID
	key     Key
}

// Tx exposes the open transaction so the issue write and the task fan-out can
// join the same atomic unit.
func (s *Scope) Tx() pgx.Tx {
	return s.tx
}

// Rollback abandons the scope. The guard row disappears with it.
func (s *Scope) Rollback(ctx context.Context) error {
	return s.tx.Rollback(ctx)
}

// Begin acquires the guard for (actorID, key). Exactly one of the return
// values is set on success: an open *Scope when this is the first submission,
// or the previously captured *Response when it is a duplicate.
func (st *Store) Begin(ctx context.Context, actorID uuid.UUID, key Key) (*Scope, *Response, error) {
	tx, err := st.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin idempotency scope: %w", err)
	}

	// Blocks here if another in-flight submission holds an uncommitted row
	// for the same (actor, key); resumes once that scope finalizes.
	ct, err := tx.Exec(ctx, `
		INSERT INTO idempotency (user_id, idempotency_key, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING`,
		actorID, key.String(),
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, fmt.Errorf("insert idempotency record: %w", err)
	}

	if ct.RowsAffected() > 0 {
		return &Scope{tx: tx, actorID: actorID, key: key}, nil, nil
	}

	// Duplicate. This scope does no other work, release it before reading the
	// committed record.
	_ = tx.Rollback(ctx)

	saved, err := st.getSavedResponse(ctx, actorID, key)
	if err != nil {
		return nil, nil, err
	}
	return nil, saved, nil
}

// CommitWithResponse captures the response snapshot on the guard row and
// commits the scope together with whatever other writes the caller staged in
// it. Returns the response, now durably cached.
func (st *Store) CommitWithResponse(ctx context.Context, scope *Scope, resp Response) (Response, error) {
	headers, err := json.Marshal(resp.Headers)
	if err != nil {
		_ = scope.tx.Rollback(ctx)
		return Response{}, fmt.Errorf("marshal response headers: %w", err)
	}

	if _, err := scope.tx.Exec(ctx, `
		UPDATE idempotency
		SET response_status_code = $3,
		    response_headers = $4,
		    response_body = $5
		WHERE user_id = $1 AND idempotency_key = $2`,
		scope.actorID, scope.key.String(), int16(resp.Status), headers, resp.Body,
	); err != nil {
		_ = scope.tx.Rollback(ctx)
		return Response{}, fmt.Errorf("save idempotency response: %w", err)
	}

	if err := scope.tx.Commit(ctx); err != nil {
		return Response{}, fmt.Errorf("commit idempotency scope: %w", err)
	}
	return resp, nil
}

func (st *Store) getSavedResponse(ctx context.Context, actorID uuid.UUID, key Key) (*Response, error) {
	var (
		status  *int16
		headers []byte
		body    []byte
	)
	err := st.pool.QueryRow(ctx, `
		SELECT response_status_code, response_headers, response_body
		FROM idempotency
		WHERE user_id = $1 AND idempotency_key = $2`,
		actorID, key.String(),
	).Scan(&status, &headers, &body)
	if err != nil {
		return nil, fmt.Errorf("read idempotency record: %w", err)
	}
	if status == nil {
		return nil, ErrEmptyRecord
	}

	resp := &Response{Status: int(*status), Body: body}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &resp.Headers); err != nil {
			return nil, fmt.Errorf("decode response headers: %w", err)
		}
	}
	return resp, nil
}
