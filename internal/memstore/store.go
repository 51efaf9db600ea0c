// Package memstore keeps all records in process memory. It implements the same
// contracts as the Postgres repositories, including transactions that undo their
// writes on rollback, and backs STORE=memory deployments and service tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/webforge/backend/internal/models"
)

var errNoSQL = errors.New("memstore: SQL is not supported")

type Store struct {
	mu sync.Mutex

	teams   map[uuid.UUID]*models.Team
	teamIDs []uuid.UUID
	// rowLocks marks team and order rows an open transaction has changed or
	// selected for update.
	rowLocks  map[uuid.UUID]*Tx
	entries   []*models.LedgerEntry
	tariffs   map[uuid.UUID]*models.PricingTariff
	orders    map[uuid.UUID]*models.WorkOrder
	orderIDs  []uuid.UUID
	appeals   map[uuid.UUID]*models.Appeal
	appealIDs []uuid.UUID

	now func() time.Time
}

func New() *Store {
	return &Store{
		teams:    make(map[uuid.UUID]*models.Team),
		rowLocks: make(map[uuid.UUID]*Tx),
		tariffs:  make(map[uuid.UUID]*models.PricingTariff),
		orders:   make(map[uuid.UUID]*models.WorkOrder),
		appeals:  make(map[uuid.UUID]*models.Appeal),
		now:      time.Now,
	}
}

func (s *Store) Begin(context.Context) (pgx.Tx, error) {
	return &Tx{store: s}, nil
}

func (s *Store) Teams() *Teams     { return &Teams{s: s} }
func (s *Store) Ledger() *Ledger   { return &Ledger{s: s} }
func (s *Store) Tariffs() *Tariffs { return &Tariffs{s: s} }
func (s *Store) Orders() *Orders   { return &Orders{s: s} }
func (s *Store) Appeals() *Appeals { return &Appeals{s: s} }

// onRollback registers fn to run if tx rolls back. Caller holds s.mu.
func (s *Store) onRollback(tx pgx.Tx, fn func()) {
	if t := asTx(tx); t != nil {
		t.undo = append(t.undo, fn)
	}
}

// lockRow gives tx the row lock on id. Without a tx it only checks that no open
// transaction holds the row. Caller holds s.mu.
func (s *Store) lockRow(tx pgx.Tx, id uuid.UUID) error {
	owner := asTx(tx)
	holder := s.rowLocks[id]
	if holder != nil && holder != owner {
		return fmt.Errorf("row %s is held by another transaction: %w", id, models.ErrConcurrencyConflict)
	}
	if owner != nil && holder == nil {
		s.rowLocks[id] = owner
		owner.locks = append(owner.locks, id)
	}
	return nil
}

func asTx(tx pgx.Tx) *Tx {
	t, _ := tx.(*Tx)
	return t
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Tx is an in-memory pgx.Tx. Writes apply immediately and are undone on Rollback.
// Rows it writes stay locked until it ends; readers that must not see its
// uncommitted state go through the row lock.
type Tx struct {
	store *Store
	undo  []func()
	locks []uuid.UUID
	done  bool
}

func (t *Tx) Commit(context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.undo = nil
	t.release()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.release()
	return nil
}

// release frees row locks. Caller holds s.mu.
func (t *Tx) release() {
	for _, id := range t.locks {
		if t.store.rowLocks[id] == t {
			delete(t.store.rowLocks, id)
		}
	}
	t.locks = nil
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) { return nil, errNoSQL }
func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNoSQL
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errNoSQL }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return errRow{} }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errNoSQL
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errNoSQL
}
func (t *Tx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errNoSQL }
