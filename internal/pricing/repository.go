package pricing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webforge/backend/internal/db"
	"github.com/webforge/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetTariff(ctx context.Context, teamID uuid.UUID) (*models.PricingTariff, error) {
	var t models.PricingTariff
	var tiers []byte
	err := r.pool.QueryRow(ctx, `
		SELECT team_id, single_page_cents, multi_page_cents, manual_order_cents, tier_cost_cents, updated_at
		FROM pricing_tariffs WHERE team_id = $1
	`, teamID).Scan(&t.TeamID, &t.SinglePageCents, &t.MultiPageCents, &t.ManualOrderCents, &tiers, &t.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("tariff for team %s: %w", teamID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tiers, &t.TierCostCents); err != nil {
		return nil, fmt.Errorf("decode tier costs: %w", err)
	}
	return &t, nil
}

func (r *Repository) UpsertTariff(ctx context.Context, t *models.PricingTariff) error {
	tiers, err := json.Marshal(t.TierCostCents)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO pricing_tariffs (team_id, single_page_cents, multi_page_cents, manual_order_cents, tier_cost_cents, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (team_id) DO UPDATE SET
			single_page_cents = EXCLUDED.single_page_cents,
			multi_page_cents = EXCLUDED.multi_page_cents,
			manual_order_cents = EXCLUDED.manual_order_cents,
			tier_cost_cents = EXCLUDED.tier_cost_cents,
			updated_at = now()
		RETURNING updated_at
	`, t.TeamID, t.SinglePageCents, t.MultiPageCents, t.ManualOrderCents, tiers).Scan(&t.UpdatedAt)
}
