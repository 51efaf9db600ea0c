package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Notification kinds.
const (
	KindOrderClaimed   = "order_claimed"
	KindOrderCompleted = "order_completed"
	KindOrderCancelled = "order_cancelled"
	KindAppealResolved = "appeal_resolved"
	KindBulkOrders     = "bulk_orders"
	KindBulkAppeals    = "bulk_appeals"
)

// Item references one record a notification is about.
type Item struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
}

type Notification struct {
	Kind       string      `json:"kind"`
	Recipients []uuid.UUID `json:"recipients"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body,omitempty"`
	Items      []Item      `json:"items"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Sink delivers notifications to people.
type Sink interface {
	Send(ctx context.Context, ns []Notification) error
}

// Dispatcher hands notifications off for delivery. It never reports failure to the
// caller; a transition that already committed stays committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, ns ...Notification)
}

// Direct sends synchronously through a sink and logs failures.
type Direct struct {
	Sink Sink
	Log  *slog.Logger
}

func (d Direct) Dispatch(ctx context.Context, ns ...Notification) {
	if len(ns) == 0 || d.Sink == nil {
		return
	}
	if err := d.Sink.Send(ctx, ns); err != nil {
		log := d.Log
		if log == nil {
			log = slog.Default()
		}
		log.Warn("send notifications failed", "kind", ns[0].Kind, "count", len(ns), "error", err)
	}
}

// Recipients returns the distinct ids in first-seen order.
func Recipients(ids ...uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
