// Package events defines the domain change events emitted by the core after a
// transition commits. Subscribers (UI push, stats refreshers) consume them from a
// Bus without the core knowing the transport.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/webforge/backend/internal/models"
)

const (
	TypeOrderSubmitted = "order.submitted"
	TypeOrderClaimed   = "order.claimed"
	TypeOrderCompleted = "order.completed"
	TypeOrderCancelled = "order.cancelled"
	TypeBalanceChanged = "balance.changed"
	TypeAppealFiled    = "appeal.filed"
	TypeAppealResolved = "appeal.resolved"
)

type Event struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	TeamID       uuid.UUID  `json:"team_id"`
	WorkOrderID  *uuid.UUID `json:"work_order_id,omitempty"`
	AppealID     *uuid.UUID `json:"appeal_id,omitempty"`
	ActorID      *uuid.UUID `json:"actor_id,omitempty"`
	Status       string     `json:"status,omitempty"`
	AmountCents  *int64     `json:"amount_cents,omitempty"`
	BalanceCents *int64     `json:"balance_cents,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Bus delivers events to subscribers.
type Bus interface {
	Emit(ctx context.Context, evs ...Event) error
}

// Publish emits evs and logs instead of failing: a committed transition is never
// reported as failed because a subscriber could not be reached.
func Publish(ctx context.Context, bus Bus, log *slog.Logger, evs ...Event) {
	if bus == nil || len(evs) == 0 {
		return
	}
	if err := bus.Emit(ctx, evs...); err != nil {
		if log == nil {
			log = slog.Default()
		}
		log.Warn("emit events failed", "type", evs[0].Type, "count", len(evs), "error", err)
	}
}

// ForOrder builds an order lifecycle event.
func ForOrder(typ string, o *models.WorkOrder, actor *uuid.UUID) Event {
	id := o.ID
	return Event{
		ID:          uuid.New(),
		Type:        typ,
		TeamID:      o.TeamID,
		WorkOrderID: &id,
		ActorID:     actor,
		Status:      o.Status,
		OccurredAt:  time.Now().UTC(),
	}
}

// ForBalance builds a BalanceChanged event from the entry that caused it.
func ForBalance(e *models.LedgerEntry) Event {
	amount, balance := e.AmountCents, e.BalanceAfterCents
	return Event{
		ID:           uuid.New(),
		Type:         TypeBalanceChanged,
		TeamID:       e.TeamID,
		WorkOrderID:  e.WorkOrderID,
		AppealID:     e.AppealID,
		ActorID:      e.ActorID,
		AmountCents:  &amount,
		BalanceCents: &balance,
		OccurredAt:   e.CreatedAt,
	}
}

// ForAppeal builds an appeal event.
func ForAppeal(typ string, a *models.Appeal, actor *uuid.UUID) Event {
	id, orderID, refund := a.ID, a.WorkOrderID, a.RefundAmountCents
	return Event{
		ID:          uuid.New(),
		Type:        typ,
		TeamID:      a.TeamID,
		WorkOrderID: &orderID,
		AppealID:    &id,
		ActorID:     actor,
		Status:      a.Status,
		AmountCents: &refund,
		OccurredAt:  time.Now().UTC(),
	}
}
