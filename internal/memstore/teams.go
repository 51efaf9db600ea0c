package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webforge/backend/internal/models"
)

type Teams struct{ s *Store }

func (r *Teams) CreateTx(_ context.Context, tx pgx.Tx, t *models.Team) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[t.ID]; ok {
		return fmt.Errorf("%w: team %s exists", models.ErrStateConflict, t.ID)
	}
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	s.teams[t.ID] = &cp
	s.teamIDs = append(s.teamIDs, t.ID)
	s.onRollback(tx, func() {
		delete(s.teams, cp.ID)
		s.teamIDs = removeID(s.teamIDs, cp.ID)
	})
	return nil
}

func (r *Teams) GetByID(_ context.Context, id uuid.UUID) (*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", id, models.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (r *Teams) List(context.Context) ([]*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := make([]*models.Team, 0, len(r.s.teamIDs))
	for i := len(r.s.teamIDs) - 1; i >= 0; i-- {
		cp := *r.s.teams[r.s.teamIDs[i]]
		list = append(list, &cp)
	}
	return list, nil
}

func (r *Teams) SetCreditLimit(_ context.Context, id uuid.UUID, cents int64) (*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", id, models.ErrNotFound)
	}
	t.CreditLimitCents = cents
	t.UpdatedAt = r.s.now().UTC()
	cp := *t
	return &cp, nil
}
