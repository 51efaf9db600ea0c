package models

import (
	"time"

	"github.com/google/uuid"
)

// Appeal status enums.
const (
	AppealStatusPending  = "pending"
	AppealStatusApproved = "approved"
	AppealStatusRejected = "rejected"
)

// ValidDecision reports whether d is a terminal appeal status.
func ValidDecision(d string) bool {
	return d == AppealStatusApproved || d == AppealStatusRejected
}

// Appeal disputes a completed work order and may refund part of its price.
type Appeal struct {
	ID                uuid.UUID    `json:"id"`
	WorkOrderID       uuid.UUID    `json:"work_order_id"`
	TeamID            uuid.UUID    `json:"team_id"`
	RequesterID       uuid.UUID    `json:"requester_id"`
	Status            string       `json:"status"`
	RefundAmountCents int64        `json:"refund_amount_cents"`
	Reason            string       `json:"reason"`
	Evidence          []Attachment `json:"evidence"`
	ResolutionComment *string      `json:"resolution_comment,omitempty"`
	ResolvedBy        *uuid.UUID   `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// AppealFilter narrows appeal listings. Zero fields are ignored.
type AppealFilter struct {
	TeamID      *uuid.UUID
	WorkOrderID *uuid.UUID
	Status      string
}

// Resolution carries the fields written when a pending appeal is decided.
type Resolution struct {
	AppealID   uuid.UUID
	Status     string
	Comment    string
	ResolverID uuid.UUID
	At         time.Time
}
