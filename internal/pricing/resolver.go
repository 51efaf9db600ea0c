// Package pricing turns a team's tariff and an order's attributes into a price.
package pricing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/webforge/backend/internal/models"
)

// DefaultCacheSize bounds how many team tariffs are kept in memory.
const DefaultCacheSize = 1024

// Store persists tariffs.
type Store interface {
	GetTariff(ctx context.Context, teamID uuid.UUID) (*models.PricingTariff, error)
	UpsertTariff(ctx context.Context, t *models.PricingTariff) error
}

// Quote is the result of pricing one order.
type Quote struct {
	PriceCents          int64 `json:"price_cents"`
	GenerationCostCents int64 `json:"generation_cost_cents"`
}

type Resolver struct {
	store Store
	cache *lru.Cache[uuid.UUID, *models.PricingTariff]
	log   *slog.Logger

	// gen counts invalidations per team. A load only fills the cache if no
	// invalidation happened while it was reading the store.
	mu  sync.Mutex
	gen map[uuid.UUID]uint64
}

func NewResolver(store Store, cacheSize int, log *slog.Logger) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if log == nil {
		log = slog.Default()
	}
	cache, err := lru.New[uuid.UUID, *models.PricingTariff](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{store: store, cache: cache, log: log, gen: make(map[uuid.UUID]uint64)}, nil
}

// Resolve prices an order. A positive manual override wins over the per-type base
// price. Teams without a tariff row get the system defaults.
func (r *Resolver) Resolve(ctx context.Context, teamID uuid.UUID, workType, aiTier string) (Quote, error) {
	if !models.ValidWorkType(workType) {
		return Quote{}, models.Invalid("unknown work type %q", workType)
	}
	if !models.ValidAITier(aiTier) {
		return Quote{}, models.Invalid("unknown ai tier %q", aiTier)
	}
	t, err := r.Tariff(ctx, teamID)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{GenerationCostCents: t.TierCostCents[aiTier]}
	switch {
	case t.ManualOrderCents > 0:
		q.PriceCents = t.ManualOrderCents
	case workType == models.WorkTypeMultiPage:
		q.PriceCents = t.MultiPageCents
	default:
		q.PriceCents = t.SinglePageCents
	}
	return q, nil
}

// Tariff returns the team's effective tariff, consulting the cache first.
func (r *Resolver) Tariff(ctx context.Context, teamID uuid.UUID) (*models.PricingTariff, error) {
	if t, ok := r.cache.Get(teamID); ok {
		return t, nil
	}
	r.mu.Lock()
	gen := r.gen[teamID]
	r.mu.Unlock()

	t, err := r.store.GetTariff(ctx, teamID)
	if errors.Is(err, models.ErrNotFound) {
		t = models.DefaultTariff(teamID)
	} else if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.gen[teamID] == gen {
		r.cache.Add(teamID, t)
	}
	r.mu.Unlock()
	return t, nil
}

// SetTariff persists t and drops the cached copy.
func (r *Resolver) SetTariff(ctx context.Context, t *models.PricingTariff) error {
	if t.SinglePageCents < 0 || t.MultiPageCents < 0 || t.ManualOrderCents < 0 {
		return models.Invalid("tariff prices must not be negative")
	}
	for tier, cost := range t.TierCostCents {
		if !models.ValidAITier(tier) || cost < 0 {
			return models.Invalid("bad tier cost %q=%d", tier, cost)
		}
	}
	if t.TierCostCents == nil {
		t.TierCostCents = map[string]int64{}
	}
	if err := r.store.UpsertTariff(ctx, t); err != nil {
		return err
	}
	r.Invalidate(t.TeamID)
	r.log.Info("tariff updated", "team_id", t.TeamID)
	return nil
}

// Invalidate drops the cached tariff and stops any load already in flight from
// caching what it read.
func (r *Resolver) Invalidate(teamID uuid.UUID) {
	r.mu.Lock()
	r.gen[teamID]++
	r.cache.Remove(teamID)
	r.mu.Unlock()
}
