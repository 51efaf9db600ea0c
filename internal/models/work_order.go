package models

import (
	"time"

	"github.com/google/uuid"
)

// Work order status enums.
const (
	OrderStatusRequested = "requested"
	OrderStatusClaimed   = "claimed"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// WorkOrder is one priced unit of manual website build work.
type WorkOrder struct {
	ID               uuid.UUID    `json:"id"`
	TeamID           uuid.UUID    `json:"team_id"`
	RequesterID      uuid.UUID    `json:"requester_id"`
	AssigneeID       *uuid.UUID   `json:"assignee_id,omitempty"`
	Status           string       `json:"status"`
	WorkType         string       `json:"work_type"`
	AITier           string       `json:"ai_tier"`
	Brief            string       `json:"brief"`
	Attachments      []Attachment `json:"attachments"`
	QuotedPriceCents int64        `json:"quoted_price_cents"`
	FinalPriceCents  *int64       `json:"final_price_cents,omitempty"`
	ArtifactRef      *string      `json:"artifact_ref,omitempty"`
	CompletionNote   *string      `json:"completion_note,omitempty"`
	CancelReason     *string      `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	ClaimedAt        *time.Time   `json:"claimed_at,omitempty"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// Terminal reports whether no further transition is possible.
func (o *WorkOrder) Terminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}

// ChargedCents is what the team paid, or zero if the order is not completed.
func (o *WorkOrder) ChargedCents() int64 {
	if o.Status != OrderStatusCompleted || o.FinalPriceCents == nil {
		return 0
	}
	return *o.FinalPriceCents
}

// OrderFilter narrows work order listings. Zero fields are ignored.
type OrderFilter struct {
	TeamID     *uuid.UUID
	AssigneeID *uuid.UUID
	Status     string
}

// Completion carries the fields written when a claimed order is completed.
type Completion struct {
	FinalPriceCents int64
	ArtifactRef     string
	Note            string
	At              time.Time
}
