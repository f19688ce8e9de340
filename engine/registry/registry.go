// Package registry is the relational store of record for documents: the
// parent row a job names and the per-sub-source child rows its extraction
// produces. All rows produced by one successful run share a chunking
// session id.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the subset of pgx.Tx this package calls inside a transaction.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Pool is the subset of *pgxpool.Pool this package calls, narrowed so tests
// can substitute a fake without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (Tx, error)
}

// poolAdapter narrows a real *pgxpool.Pool to Pool; pgx.Tx's method set is a
// superset of Tx's, so the Begin result converts without a wrapper.
type poolAdapter struct{ p *pgxpool.Pool }

func (a *poolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.p.Exec(ctx, sql, args...)
}

func (a *poolAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.p.QueryRow(ctx, sql, args...)
}

func (a *poolAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.p.Query(ctx, sql, args...)
}

func (a *poolAdapter) Begin(ctx context.Context) (Tx, error) {
	tx, err := a.p.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Document is one row of the documents table. ParentID is nil for the
// parent row a job names directly; child rows set it to that parent's ID.
type Document struct {
	ID              int64
	ParentID        *int64
	ConnectorID     int64
	SourceID        string
	URL             string
	Signature       string
	ChunkingSession uuid.UUID
	Analyzed        bool
	CreationDate    time.Time
	LastUpdate      time.Time
}

// Store is the document registry, backed by a Postgres-compatible pool.
type Store struct {
	pool Pool
}

// New wraps pool as a registry Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: &poolAdapter{p: pool}}
}

// NewWithPool wraps an already-narrowed Pool, for tests.
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool}
}

// InitSchema creates the documents table if it does not already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
  id BIGSERIAL PRIMARY KEY,
  parent_id BIGINT REFERENCES documents(id) ON DELETE CASCADE,
  connector_id BIGINT NOT NULL,
  source_id TEXT NOT NULL,
  url TEXT NOT NULL DEFAULT '',
  signature TEXT NOT NULL DEFAULT '',
  chunking_session UUID,
  analyzed BOOLEAN NOT NULL DEFAULT false,
  creation_date TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_update TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_parent_id_idx ON documents(parent_id);
`)
	if err != nil {
		return fmt.Errorf("registry: init schema: %w", err)
	}
	return nil
}

// Get fetches a document row by id.
func (s *Store) Get(ctx context.Context, id int64) (Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx, `
SELECT id, parent_id, connector_id, source_id, url, signature, chunking_session, analyzed, creation_date, last_update
FROM documents WHERE id=$1`, id).Scan(
		&d.ID, &d.ParentID, &d.ConnectorID, &d.SourceID, &d.URL, &d.Signature,
		&d.ChunkingSession, &d.Analyzed, &d.CreationDate, &d.LastUpdate,
	)
	if err != nil {
		return Document{}, fmt.Errorf("registry: get document %d: %w", id, err)
	}
	return d, nil
}

// ListOpts filters List calls. Filter recognizes "connector_id" and
// "parent_id" keys.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}

// ListByParent returns every child row of parentID, ordered by id.
func (s *Store) ListByParent(ctx context.Context, parentID int64) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, parent_id, connector_id, source_id, url, signature, chunking_session, analyzed, creation_date, last_update
FROM documents WHERE parent_id=$1 ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("registry: list children of %d: %w", parentID, err)
	}
	defer rows.Close()

	out := make([]Document, 0, 16)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.ParentID, &d.ConnectorID, &d.SourceID, &d.URL, &d.Signature,
			&d.ChunkingSession, &d.Analyzed, &d.CreationDate, &d.LastUpdate); err != nil {
			return nil, fmt.Errorf("registry: scan child row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Create inserts a new document row and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, d Document) (Document, error) {
	err := s.pool.QueryRow(ctx, `
INSERT INTO documents(parent_id, connector_id, source_id, url, signature, chunking_session, analyzed)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id, creation_date, last_update`,
		d.ParentID, d.ConnectorID, d.SourceID, d.URL, d.Signature, d.ChunkingSession, d.Analyzed,
	).Scan(&d.ID, &d.CreationDate, &d.LastUpdate)
	if err != nil {
		return Document{}, fmt.Errorf("registry: create document: %w", err)
	}
	return d, nil
}

// SetAnalyzed updates a single document's analyzed flag and last_update.
func (s *Store) SetAnalyzed(ctx context.Context, id int64, analyzed bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE documents SET analyzed=$2, last_update=now() WHERE id=$1`, id, analyzed)
	if err != nil {
		return fmt.Errorf("registry: set analyzed on %d: %w", id, err)
	}
	return nil
}

// DeleteByParent removes every child row of parentID. The parent row
// itself is untouched.
func (s *Store) DeleteByParent(ctx context.Context, parentID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE parent_id=$1`, parentID)
	if err != nil {
		return fmt.Errorf("registry: delete children of %d: %w", parentID, err)
	}
	return nil
}

// ErrNoItems is returned by callers (not this package) to signal the
// zero-extraction path; kept here so engine/dispatch can recognize it
// without importing an extractor package.
var ErrNoItems = errors.New("registry: extraction yielded no items")

// Child is one sub-source row to insert under InsertChildren.
type Child struct {
	SourceID  string
	URL       string
	Signature string
}

// InsertChildren wipes parentID's prior children, then inserts children
// under one freshly minted chunking session, all analyzed=true. The
// parent row itself is marked analyzed=true and returned alongside the
// session. If children is empty the parent is instead marked
// analyzed=false and no rows are created — the zero-extraction path.
func (s *Store) InsertChildren(ctx context.Context, parentID, connectorID int64, children []Child) (uuid.UUID, error) {
	if len(children) == 0 {
		if err := s.DeleteByParent(ctx, parentID); err != nil {
			return uuid.UUID{}, err
		}
		if err := s.SetAnalyzed(ctx, parentID, false); err != nil {
			return uuid.UUID{}, err
		}
		return uuid.UUID{}, nil
	}

	session := uuid.New()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("registry: begin insert children tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE parent_id=$1`, parentID); err != nil {
		return uuid.UUID{}, fmt.Errorf("registry: delete prior children of %d: %w", parentID, err)
	}
	for _, c := range children {
		if _, err := tx.Exec(ctx, `
INSERT INTO documents(parent_id, connector_id, source_id, url, signature, chunking_session, analyzed)
VALUES ($1,$2,$3,$4,$5,$6,true)`, parentID, connectorID, c.SourceID, c.URL, c.Signature, session); err != nil {
			return uuid.UUID{}, fmt.Errorf("registry: insert child of %d: %w", parentID, err)
		}
	}
	if _, err := tx.Exec(ctx, `
UPDATE documents SET chunking_session=$2, analyzed=true, last_update=now() WHERE id=$1`, parentID, session); err != nil {
		return uuid.UUID{}, fmt.Errorf("registry: update parent %d: %w", parentID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.UUID{}, fmt.Errorf("registry: commit insert children tx: %w", err)
	}
	return session, nil
}
