package models

import (
	"time"

	"github.com/google/uuid"
)

// Work types a team can order.
const (
	WorkTypeSinglePage = "single_page"
	WorkTypeMultiPage  = "multi_page"
)

// AI generation tiers.
const (
	AITierNone     = "none"
	AITierStandard = "standard"
	AITierAdvanced = "advanced"
)

// Fallback prices used when a team has no tariff row.
const (
	DefaultSinglePageCents = 5000
	DefaultMultiPageCents  = 15000
)

// ValidWorkType reports whether t is a known work type.
func ValidWorkType(t string) bool {
	return t == WorkTypeSinglePage || t == WorkTypeMultiPage
}

// ValidAITier reports whether t is a known tier. Empty means none.
func ValidAITier(t string) bool {
	switch t {
	case "", AITierNone, AITierStandard, AITierAdvanced:
		return true
	}
	return false
}

// PricingTariff is a team's price table.
type PricingTariff struct {
	TeamID           uuid.UUID        `json:"team_id"`
	SinglePageCents  int64            `json:"single_page_cents"`
	MultiPageCents   int64            `json:"multi_page_cents"`
	ManualOrderCents int64            `json:"manual_order_cents"`
	TierCostCents    map[string]int64 `json:"tier_cost_cents"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// DefaultTariff returns the system price table for a team without its own.
func DefaultTariff(teamID uuid.UUID) *PricingTariff {
	return &PricingTariff{
		TeamID:          teamID,
		SinglePageCents: DefaultSinglePageCents,
		MultiPageCents:  DefaultMultiPageCents,
		TierCostCents:   map[string]int64{},
	}
}
