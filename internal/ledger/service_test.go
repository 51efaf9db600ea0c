package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webforge/backend/internal/db"
	"github.com/webforge/backend/internal/memstore"
	"github.com/webforge/backend/internal/models"
)

func newTeam(t *testing.T, s *memstore.Store, balance int64) uuid.UUID {
	t.Helper()
	team := &models.Team{ID: uuid.New(), Name: "t", BalanceCents: balance}
	if err := s.Teams().CreateTx(context.Background(), nil, team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	return team.ID
}

func TestApplyRecordsBeforeAndAfter(t *testing.T) {
	store := memstore.New()
	svc := NewService(store.Ledger(), store)
	team := newTeam(t, store, 1000)

	e, err := svc.Apply(context.Background(), Entry{TeamID: team, Kind: models.LedgerKindAdjustment, AmountCents: -250, Note: "fix"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if e.BalanceBeforeCents != 1000 || e.BalanceAfterCents != 750 {
		t.Errorf("entry balances: got %d -> %d, want 1000 -> 750", e.BalanceBeforeCents, e.BalanceAfterCents)
	}
	entries, _ := svc.Statement(context.Background(), team)
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
}

func TestApplyEntryRollsBackWithCaller(t *testing.T) {
	store := memstore.New()
	svc := NewService(store.Ledger(), store)
	team := newTeam(t, store, 100)
	ctx := context.Background()

	boom := errors.New("later step failed")
	err := db.WithTx(ctx, store, func(tx pgx.Tx) error {
		if _, err := svc.ApplyEntry(ctx, tx, Entry{TeamID: team, Kind: models.LedgerKindAdjustment, AmountCents: 50}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx: got %v, want %v", err, boom)
	}
	rec, _ := svc.Reconcile(ctx, team)
	if rec.BalanceCents != 100 || rec.Entries != 0 {
		t.Errorf("after rollback: balance %d entries %d, want 100 and 0", rec.BalanceCents, rec.Entries)
	}
}

func TestApplyValidation(t *testing.T) {
	store := memstore.New()
	svc := NewService(store.Ledger(), store)
	if _, err := svc.Apply(context.Background(), Entry{Kind: models.LedgerKindAdjustment}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("missing team: got %v, want ErrValidation", err)
	}
	if _, err := svc.Apply(context.Background(), Entry{TeamID: uuid.New(), Kind: models.LedgerKindAdjustment}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown team: got %v, want ErrNotFound", err)
	}
}

func TestConcurrentApplyKeepsLedgerConsistent(t *testing.T) {
	store := memstore.New()
	svc := NewService(store.Ledger(), store)
	team := newTeam(t, store, 0)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Plenty of attempts: the test asserts consistency, not throughput.
			err := RetryOnConflict(ctx, 100, func() error {
				return db.WithTx(ctx, store, func(tx pgx.Tx) error {
					_, err := svc.ApplyEntry(ctx, tx, Entry{TeamID: team, Kind: models.LedgerKindAdjustment, AmountCents: 10})
					return err
				})
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	rec, err := svc.Reconcile(ctx, team)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rec.Consistent || rec.BalanceCents != workers*10 || rec.Entries != workers {
		t.Errorf("reconcile: %+v", rec)
	}
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 5, func() error {
		calls++
		if calls < 3 {
			return models.ErrConcurrencyConflict
		}
		return models.ErrNotFound
	})
	if !errors.Is(err, models.ErrNotFound) || calls != 3 {
		t.Errorf("got err=%v calls=%d, want ErrNotFound after 3 calls", err, calls)
	}
}

func TestReconcileNeverSeesHalfAppliedCharge(t *testing.T) {
	store := memstore.New()
	svc := NewService(store.Ledger(), store)
	team := newTeam(t, store, 0)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, Entry{TeamID: team, Kind: models.LedgerKindAdjustment, AmountCents: 100}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := svc.ApplyEntry(ctx, tx, Entry{TeamID: team, Kind: models.LedgerKindAdjustment, AmountCents: -30}); err != nil {
		t.Fatalf("ApplyEntry: %v", err)
	}

	if rec, err := svc.Reconcile(ctx, team); !errors.Is(err, models.ErrConcurrencyConflict) {
		t.Fatalf("reconcile during open charge: got %+v, %v; want ErrConcurrencyConflict", rec, err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rec, err := svc.Reconcile(ctx, team)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rec.Consistent || rec.BalanceCents != 70 || rec.Entries != 2 {
		t.Errorf("reconcile: %+v", rec)
	}
}
