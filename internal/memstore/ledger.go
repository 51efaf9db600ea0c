package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webforge/backend/internal/models"
)

type Ledger struct{ s *Store }

func (r *Ledger) BalanceTx(_ context.Context, _ pgx.Tx, teamID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[teamID]
	if !ok {
		return 0, fmt.Errorf("team %s: %w", teamID, models.ErrNotFound)
	}
	return t.BalanceCents, nil
}

// CompareAndSetBalanceTx fails (returns false) when the balance differs from
// expected or another open transaction still holds the row.
func (r *Ledger) CompareAndSetBalanceTx(_ context.Context, tx pgx.Tx, teamID uuid.UUID, expected, next int64) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return false, fmt.Errorf("team %s: %w", teamID, models.ErrNotFound)
	}
	owner := asTx(tx)
	if holder := s.rowLocks[teamID]; holder != nil && holder != owner {
		return false, nil
	}
	if t.BalanceCents != expected {
		return false, nil
	}
	delta := next - expected
	t.BalanceCents = next
	t.UpdatedAt = s.now().UTC()
	if owner != nil {
		if s.rowLocks[teamID] == nil {
			s.rowLocks[teamID] = owner
			owner.locks = append(owner.locks, teamID)
		}
		s.onRollback(tx, func() { s.teams[teamID].BalanceCents -= delta })
	}
	return true, nil
}

func (r *Ledger) InsertEntryTx(_ context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if e.Kind == models.LedgerKindOrderCharge && existing.Kind == e.Kind && sameID(existing.WorkOrderID, e.WorkOrderID) ||
			e.Kind == models.LedgerKindAppealRefund && existing.Kind == e.Kind && sameID(existing.AppealID, e.AppealID) {
			return fmt.Errorf("%w: %s entry already recorded", models.ErrStateConflict, e.Kind)
		}
	}
	cp := *e
	s.entries = append(s.entries, &cp)
	s.onRollback(tx, func() {
		for i, x := range s.entries {
			if x.ID == cp.ID {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *Ledger) ListEntries(_ context.Context, teamID uuid.UUID) ([]*models.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.LedgerEntry
	for i := len(r.s.entries) - 1; i >= 0; i-- {
		if e := r.s.entries[i]; e.TeamID == teamID {
			cp := *e
			list = append(list, &cp)
		}
	}
	return list, nil
}

// SnapshotTx reads balance and entries under one lock. A row still held by
// another transaction has half-applied writes, so it reports a conflict.
func (r *Ledger) SnapshotTx(_ context.Context, tx pgx.Tx, teamID uuid.UUID) (int64, []*models.LedgerEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return 0, nil, fmt.Errorf("team %s: %w", teamID, models.ErrNotFound)
	}
	if holder := s.rowLocks[teamID]; holder != nil && holder != asTx(tx) {
		return 0, nil, fmt.Errorf("team %s: %w", teamID, models.ErrConcurrencyConflict)
	}
	var list []*models.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if e := s.entries[i]; e.TeamID == teamID {
			cp := *e
			list = append(list, &cp)
		}
	}
	return t.BalanceCents, list, nil
}

func sameID(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}
