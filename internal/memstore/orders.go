package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webforge/backend/internal/models"
)

type Orders struct{ s *Store }

func (r *Orders) CreateTx(_ context.Context, tx pgx.Tx, o *models.WorkOrder) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[o.TeamID]; !ok {
		return fmt.Errorf("team %s: %w", o.TeamID, models.ErrNotFound)
	}
	cp := *o
	s.orders[o.ID] = &cp
	s.orderIDs = append(s.orderIDs, o.ID)
	s.onRollback(tx, func() {
		delete(s.orders, cp.ID)
		s.orderIDs = removeID(s.orderIDs, cp.ID)
	})
	return nil
}

func (r *Orders) GetByID(_ context.Context, id uuid.UUID) (*models.WorkOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("work order %s: %w", id, models.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

// GetForUpdateTx takes the order's row lock for tx. It fails with
// models.ErrConcurrencyConflict while another transaction holds the row.
func (r *Orders) GetForUpdateTx(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.WorkOrder, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("work order %s: %w", id, models.ErrNotFound)
	}
	if err := s.lockRow(tx, id); err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}

func (r *Orders) List(_ context.Context, f models.OrderFilter) ([]*models.WorkOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.WorkOrder
	for i := len(r.s.orderIDs) - 1; i >= 0; i-- {
		o := r.s.orders[r.s.orderIDs[i]]
		if f.TeamID != nil && o.TeamID != *f.TeamID {
			continue
		}
		if f.AssigneeID != nil && (o.AssigneeID == nil || *o.AssigneeID != *f.AssigneeID) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		cp := *o
		list = append(list, &cp)
	}
	return list, nil
}

// transition applies fn to the order if it is in status from. Caller holds s.mu.
func (r *Orders) transition(tx pgx.Tx, id uuid.UUID, from string, fn func(o *models.WorkOrder)) (*models.WorkOrder, error) {
	s := r.s
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("work order %s: %w", id, models.ErrNotFound)
	}
	if err := s.lockRow(tx, id); err != nil {
		return nil, err
	}
	if o.Status != from {
		return nil, fmt.Errorf("work order %s is %s: %w", id, o.Status, models.ErrInvalidState)
	}
	prev := *o
	fn(o)
	s.onRollback(tx, func() { s.orders[id] = &prev })
	cp := *o
	return &cp, nil
}

func (r *Orders) Claim(_ context.Context, id, workerID uuid.UUID, at time.Time) (*models.WorkOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.transition(nil, id, models.OrderStatusRequested, func(o *models.WorkOrder) {
		o.Status = models.OrderStatusClaimed
		o.AssigneeID = &workerID
		o.ClaimedAt = &at
	})
}

func (r *Orders) CompleteTx(_ context.Context, tx pgx.Tx, id uuid.UUID, c models.Completion) (*models.WorkOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.transition(tx, id, models.OrderStatusClaimed, func(o *models.WorkOrder) {
		price, ref, note, at := c.FinalPriceCents, c.ArtifactRef, c.Note, c.At
		o.Status = models.OrderStatusCompleted
		o.FinalPriceCents = &price
		o.ArtifactRef = &ref
		o.CompletionNote = &note
		o.CompletedAt = &at
	})
}

func (r *Orders) Cancel(_ context.Context, id uuid.UUID, reason string, at time.Time) (*models.WorkOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.transition(nil, id, models.OrderStatusRequested, func(o *models.WorkOrder) {
		o.Status = models.OrderStatusCancelled
		o.CancelReason = &reason
		o.CompletedAt = &at
	})
}
