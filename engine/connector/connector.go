// Package connector tracks per-connector job status on the same relational
// pool as the document registry: ReadyToBeProcessed/Pending connectors move
// to Processing when a worker picks up their job, then to
// CompletedSuccessfully or CompletedWithErrors when the job finishes.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is one state in the connector lifecycle.
type Status string

const (
	ReadyToBeProcessed    Status = "ReadyToBeProcessed"
	Pending               Status = "Pending"
	Processing            Status = "Processing"
	CompletedSuccessfully Status = "CompletedSuccessfully"
	CompletedWithErrors   Status = "CompletedWithErrors"
	Disabled              Status = "Disabled"
	UnableToProcess       Status = "UnableToProcess"
)

// Pool is the subset of *pgxpool.Pool this package calls.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type poolAdapter struct{ p *pgxpool.Pool }

func (a *poolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.p.Exec(ctx, sql, args...)
}

func (a *poolAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.p.QueryRow(ctx, sql, args...)
}

// Connector is one row of the connectors table.
type Connector struct {
	ID                     int64
	Name                   string
	Type                   string
	ConnectorSpecificConfig []byte // raw JSON
	RefreshFreq            int64
	UserID                 int64
	TenantID               int64
	Status                 Status
	LastSuccessfulIndex    *time.Time
	TotalDocsAnalyzed      int64
	CreationDate           time.Time
	LastUpdate             time.Time
	DeletedDate            *time.Time
}

// Store is the connector status store.
type Store struct {
	pool Pool
}

// New wraps pool as a connector Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: &poolAdapter{p: pool}}
}

// NewWithPool wraps an already-narrowed Pool, for tests.
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool}
}

// InitSchema creates the connectors table if it does not already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS connectors (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  connector_specific_config JSONB NOT NULL DEFAULT '{}',
  refresh_freq BIGINT NOT NULL DEFAULT 0,
  user_id BIGINT NOT NULL,
  tenant_id BIGINT NOT NULL,
  status TEXT NOT NULL DEFAULT 'ReadyToBeProcessed',
  last_successful_index_date TIMESTAMPTZ,
  total_docs_analyzed BIGINT NOT NULL DEFAULT 0,
  creation_date TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_update TIMESTAMPTZ NOT NULL DEFAULT now(),
  deleted_date TIMESTAMPTZ
);
`)
	if err != nil {
		return fmt.Errorf("connector: init schema: %w", err)
	}
	return nil
}

// Get fetches a connector row by id.
func (s *Store) Get(ctx context.Context, id int64) (Connector, error) {
	var c Connector
	err := s.pool.QueryRow(ctx, `
SELECT id, name, type, connector_specific_config, refresh_freq, user_id, tenant_id, status,
       last_successful_index_date, total_docs_analyzed, creation_date, last_update, deleted_date
FROM connectors WHERE id=$1`, id).Scan(
		&c.ID, &c.Name, &c.Type, &c.ConnectorSpecificConfig, &c.RefreshFreq, &c.UserID, &c.TenantID,
		&c.Status, &c.LastSuccessfulIndex, &c.TotalDocsAnalyzed, &c.CreationDate, &c.LastUpdate, &c.DeletedDate,
	)
	if err != nil {
		return Connector{}, fmt.Errorf("connector: get %d: %w", id, err)
	}
	return c, nil
}

// transitions enumerates every state change the worker is allowed to make.
// Disabled and UnableToProcess are deliberately absent: the worker never
// moves a connector into either, that's the control plane's call.
var transitions = map[Status]map[Status]bool{
	ReadyToBeProcessed: {Processing: true},
	Pending:             {Processing: true},
	Processing: {
		CompletedSuccessfully: true,
		CompletedWithErrors:   true,
	},
}

// ErrForbiddenTransition is returned when the worker attempts a state change
// outside its allowed set.
type ErrForbiddenTransition struct {
	From, To Status
}

func (e ErrForbiddenTransition) Error() string {
	return fmt.Sprintf("connector: worker may not transition %s -> %s", e.From, e.To)
}

// currentStatus fetches a connector's status, so the Start/Complete* methods
// can pass the real "from" state into Transition instead of assuming one.
func (s *Store) currentStatus(ctx context.Context, id int64) (Status, error) {
	var status Status
	err := s.pool.QueryRow(ctx, `SELECT status FROM connectors WHERE id=$1`, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("connector: lookup status %d: %w", id, err)
	}
	return status, nil
}

// StartProcessing transitions a connector to Processing, regardless of
// whether it was ReadyToBeProcessed or Pending.
func (s *Store) StartProcessing(ctx context.Context, id int64) error {
	current, err := s.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Transition(ctx, id, current, Processing); err != nil {
		return fmt.Errorf("connector: start processing %d: %w", id, err)
	}
	return nil
}

// CompleteSuccessfully transitions a connector to CompletedSuccessfully,
// recording the indexed entity count and the successful-index timestamp.
func (s *Store) CompleteSuccessfully(ctx context.Context, id int64, totalDocsIndexed int64) error {
	current, err := s.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Transition(ctx, id, current, CompletedSuccessfully); err != nil {
		return fmt.Errorf("connector: complete successfully %d: %w", id, err)
	}
	_, err = s.pool.Exec(ctx, `
UPDATE connectors SET last_successful_index_date=now(), total_docs_analyzed=$2, last_update=now()
WHERE id=$1`, id, totalDocsIndexed)
	if err != nil {
		return fmt.Errorf("connector: record successful index %d: %w", id, err)
	}
	return nil
}

// CompleteWithErrors transitions a connector to CompletedWithErrors. Called
// on any exception or deadline overrun during processing; never returns an
// error itself beyond a failed write, since this call is already on the
// worker's failure path.
func (s *Store) CompleteWithErrors(ctx context.Context, id int64) error {
	current, err := s.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Transition(ctx, id, current, CompletedWithErrors); err != nil {
		return fmt.Errorf("connector: complete with errors %d: %w", id, err)
	}
	return nil
}

// Transition performs an arbitrary worker-initiated status change after
// checking it against the allowed transition table.
func (s *Store) Transition(ctx context.Context, id int64, from, to Status) error {
	if !transitions[from][to] {
		return ErrForbiddenTransition{From: from, To: to}
	}
	_, err := s.pool.Exec(ctx, `
UPDATE connectors SET status=$2, last_update=now() WHERE id=$1`, id, string(to))
	if err != nil {
		return fmt.Errorf("connector: transition %d to %s: %w", id, to, err)
	}
	return nil
}
