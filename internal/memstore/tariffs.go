package memstore

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/webforge/backend/internal/models"
)

type Tariffs struct{ s *Store }

func (r *Tariffs) GetTariff(_ context.Context, teamID uuid.UUID) (*models.PricingTariff, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tariffs[teamID]
	if !ok {
		return nil, fmt.Errorf("tariff for team %s: %w", teamID, models.ErrNotFound)
	}
	cp := *t
	cp.TierCostCents = maps.Clone(t.TierCostCents)
	return &cp, nil
}

func (r *Tariffs) UpsertTariff(_ context.Context, t *models.PricingTariff) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.teams[t.TeamID]; !ok {
		return fmt.Errorf("team %s: %w", t.TeamID, models.ErrNotFound)
	}
	t.UpdatedAt = r.s.now().UTC()
	cp := *t
	cp.TierCostCents = maps.Clone(t.TierCostCents)
	r.s.tariffs[t.TeamID] = &cp
	return nil
}
