package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds.
const (
	LedgerKindOrderCharge  = "order_charge"
	LedgerKindAppealRefund = "appeal_refund"
	LedgerKindAdjustment   = "adjustment"
)

// LedgerEntry is an immutable record of one balance change.
type LedgerEntry struct {
	ID                 uuid.UUID  `json:"id"`
	TeamID             uuid.UUID  `json:"team_id"`
	Kind               string     `json:"kind"`
	AmountCents        int64      `json:"amount_cents"`
	BalanceBeforeCents int64      `json:"balance_before_cents"`
	BalanceAfterCents  int64      `json:"balance_after_cents"`
	Note               string     `json:"note"`
	ActorID            *uuid.UUID `json:"actor_id,omitempty"`
	WorkOrderID        *uuid.UUID `json:"work_order_id,omitempty"`
	AppealID           *uuid.UUID `json:"appeal_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
