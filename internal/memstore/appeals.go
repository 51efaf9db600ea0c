package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webforge/backend/internal/models"
)

type Appeals struct{ s *Store }

func (r *Appeals) CreateTx(_ context.Context, tx pgx.Tx, a *models.Appeal) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.appeals {
		if existing.WorkOrderID == a.WorkOrderID && existing.Status == models.AppealStatusPending {
			return fmt.Errorf("%w: work order %s already has a pending appeal", models.ErrStateConflict, a.WorkOrderID)
		}
	}
	cp := *a
	s.appeals[a.ID] = &cp
	s.appealIDs = append(s.appealIDs, a.ID)
	s.onRollback(tx, func() {
		delete(s.appeals, cp.ID)
		s.appealIDs = removeID(s.appealIDs, cp.ID)
	})
	return nil
}

func (r *Appeals) GetByID(_ context.Context, id uuid.UUID) (*models.Appeal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appeals[id]
	if !ok {
		return nil, fmt.Errorf("appeal %s: %w", id, models.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *Appeals) List(_ context.Context, f models.AppealFilter) ([]*models.Appeal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Appeal
	for i := len(r.s.appealIDs) - 1; i >= 0; i-- {
		a := r.s.appeals[r.s.appealIDs[i]]
		if f.TeamID != nil && a.TeamID != *f.TeamID {
			continue
		}
		if f.WorkOrderID != nil && a.WorkOrderID != *f.WorkOrderID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		list = append(list, &cp)
	}
	return list, nil
}

func (r *Appeals) HasPendingTx(_ context.Context, _ pgx.Tx, orderID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.appeals {
		if a.WorkOrderID == orderID && a.Status == models.AppealStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *Appeals) ApprovedRefundTotalTx(_ context.Context, _ pgx.Tx, orderID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, a := range r.s.appeals {
		if a.WorkOrderID == orderID && a.Status == models.AppealStatusApproved {
			total += a.RefundAmountCents
		}
	}
	return total, nil
}

func (r *Appeals) ResolveTx(_ context.Context, tx pgx.Tx, res models.Resolution) (*models.Appeal, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appeals[res.AppealID]
	if !ok {
		return nil, fmt.Errorf("appeal %s: %w", res.AppealID, models.ErrNotFound)
	}
	if a.Status != models.AppealStatusPending {
		return nil, fmt.Errorf("appeal %s is %s: %w", a.ID, a.Status, models.ErrAlreadyResolved)
	}
	prev := *a
	comment, resolver, at := res.Comment, res.ResolverID, res.At
	a.Status = res.Status
	a.ResolutionComment = &comment
	a.ResolvedBy = &resolver
	a.ResolvedAt = &at
	s.onRollback(tx, func() { s.appeals[prev.ID] = &prev })
	cp := *a
	return &cp, nil
}
