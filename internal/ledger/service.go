package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webforge/backend/internal/db"
	"github.com/webforge/backend/internal/models"
)

// DefaultAttempts is how many times a unit of work is retried after a lost update.
const DefaultAttempts = 5

// Store is the persistence contract of the ledger.
type Store interface {
	BalanceTx(ctx context.Context, tx pgx.Tx, teamID uuid.UUID) (int64, error)
	CompareAndSetBalanceTx(ctx context.Context, tx pgx.Tx, teamID uuid.UUID, expected, next int64) (bool, error)
	InsertEntryTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	ListEntries(ctx context.Context, teamID uuid.UUID) ([]*models.LedgerEntry, error)
	// SnapshotTx returns the balance and entries as one consistent read. It
	// returns models.ErrConcurrencyConflict if another transaction holds the row.
	SnapshotTx(ctx context.Context, tx pgx.Tx, teamID uuid.UUID) (int64, []*models.LedgerEntry, error)
}

// Entry describes a balance change to record.
type Entry struct {
	TeamID      uuid.UUID
	Kind        string
	AmountCents int64
	Note        string
	ActorID     *uuid.UUID
	WorkOrderID *uuid.UUID
	AppealID    *uuid.UUID
}

// Reconciliation compares a team's stored balance against its ledger.
type Reconciliation struct {
	TeamID             uuid.UUID `json:"team_id"`
	BalanceCents       int64     `json:"balance_cents"`
	LedgerSumCents     int64     `json:"ledger_sum_cents"`
	LatestBalanceCents *int64    `json:"latest_balance_after_cents,omitempty"`
	Entries            int       `json:"entries"`
	Consistent         bool      `json:"consistent"`
}

type Service interface {
	// ApplyEntry records e inside the caller's transaction. The balance update and the
	// entry insert commit or roll back together with the rest of tx. It returns
	// models.ErrConcurrencyConflict if the balance moved since it was read.
	ApplyEntry(ctx context.Context, tx pgx.Tx, e Entry) (*models.LedgerEntry, error)
	// Apply records e in its own transaction, retrying lost updates.
	Apply(ctx context.Context, e Entry) (*models.LedgerEntry, error)
	Statement(ctx context.Context, teamID uuid.UUID) ([]*models.LedgerEntry, error)
	Reconcile(ctx context.Context, teamID uuid.UUID) (*Reconciliation, error)
}

type service struct {
	store Store
	txs   db.TxBeginner
	now   func() time.Time
}

func NewService(store Store, txs db.TxBeginner) Service {
	return &service{store: store, txs: txs, now: time.Now}
}

var _ Service = (*service)(nil)

func (s *service) ApplyEntry(ctx context.Context, tx pgx.Tx, e Entry) (*models.LedgerEntry, error) {
	if e.TeamID == uuid.Nil {
		return nil, models.Invalid("ledger entry needs a team")
	}
	if e.Kind == "" {
		return nil, models.Invalid("ledger entry needs a kind")
	}
	before, err := s.store.BalanceTx(ctx, tx, e.TeamID)
	if err != nil {
		return nil, err
	}
	after := before + e.AmountCents
	ok, err := s.store.CompareAndSetBalanceTx(ctx, tx, e.TeamID, before, after)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("team %s: %w", e.TeamID, models.ErrConcurrencyConflict)
	}
	entry := &models.LedgerEntry{
		ID:                 uuid.New(),
		TeamID:             e.TeamID,
		Kind:               e.Kind,
		AmountCents:        e.AmountCents,
		BalanceBeforeCents: before,
		BalanceAfterCents:  after,
		Note:               e.Note,
		ActorID:            e.ActorID,
		WorkOrderID:        e.WorkOrderID,
		AppealID:           e.AppealID,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.store.InsertEntryTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Apply(ctx context.Context, e Entry) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := RetryOnConflict(ctx, DefaultAttempts, func() error {
		return db.WithTx(ctx, s.txs, func(tx pgx.Tx) error {
			var err error
			entry, err = s.ApplyEntry(ctx, tx, e)
			return err
		})
	})
	return entry, err
}

func (s *service) Statement(ctx context.Context, teamID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.store.ListEntries(ctx, teamID)
}

func (s *service) Reconcile(ctx context.Context, teamID uuid.UUID) (*Reconciliation, error) {
	var balance int64
	var entries []*models.LedgerEntry
	err := RetryOnConflict(ctx, DefaultAttempts, func() error {
		return db.WithTx(ctx, s.txs, func(tx pgx.Tx) error {
			var err error
			balance, entries, err = s.store.SnapshotTx(ctx, tx, teamID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	rec := &Reconciliation{TeamID: teamID, BalanceCents: balance, Entries: len(entries)}
	for _, e := range entries {
		rec.LedgerSumCents += e.AmountCents
	}
	rec.Consistent = rec.LedgerSumCents == balance
	if len(entries) > 0 {
		latest := entries[0].BalanceAfterCents
		rec.LatestBalanceCents = &latest
		rec.Consistent = rec.Consistent && latest == balance
	}
	return rec, nil
}

// RetryOnConflict runs fn until it returns something other than
// models.ErrConcurrencyConflict or attempts are exhausted. fn must be a complete
// unit of work (typically a whole transaction).
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, models.ErrConcurrencyConflict) {
			return err
		}
		pause := time.Duration(i+1)*5*time.Millisecond + rand.N(5*time.Millisecond)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
	return err
}
