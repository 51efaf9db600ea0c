package models

import (
	"time"

	"github.com/google/uuid"
)

// Team is a group of buyers sharing one balance. Balance is only ever
// changed through the ledger.
type Team struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	BalanceCents     int64     `json:"balance_cents"`
	CreditLimitCents int64     `json:"credit_limit_cents"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available is the amount the team may still commit to new orders.
func (t *Team) Available() int64 {
	return t.BalanceCents + t.CreditLimitCents
}
