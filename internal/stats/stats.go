// Package stats derives workload and timing figures from work order history.
// Nothing here is stored; every figure is recomputed from the orders passed in.
package stats

import (
	"time"

	"github.com/google/uuid"

	"github.com/webforge/backend/internal/models"
)

// Workload summarises one operator's orders. Means are nil when no order had the
// timestamps they need.
type Workload struct {
	AdminID        uuid.UUID      `json:"admin_id"`
	Assigned       int            `json:"assigned"`
	InProgress     int            `json:"in_progress"`
	Completed      int            `json:"completed"`
	CompletedToday int            `json:"completed_today"`
	AvgWait        *time.Duration `json:"avg_wait_ns,omitempty"`
	AvgCompletion  *time.Duration `json:"avg_completion_ns,omitempty"`
}

// TimeStats are means over all orders. Samples counts what each mean covers.
type TimeStats struct {
	AvgWait           *time.Duration `json:"avg_wait_ns,omitempty"`
	AvgCompletion     *time.Duration `json:"avg_completion_ns,omitempty"`
	AvgTotal          *time.Duration `json:"avg_total_ns,omitempty"`
	WaitSamples       int            `json:"wait_samples"`
	CompletionSamples int            `json:"completion_samples"`
	TotalSamples      int            `json:"total_samples"`
}

type mean struct {
	sum time.Duration
	n   int
}

// add records end-start when both are known and ordered.
func (m *mean) add(start, end *time.Time) {
	if start == nil || end == nil || end.Before(*start) {
		return
	}
	m.sum += end.Sub(*start)
	m.n++
}

func (m *mean) value() *time.Duration {
	if m.n == 0 {
		return nil
	}
	v := m.sum / time.Duration(m.n)
	return &v
}

// AdminWorkload groups orders by assignee. Wait is claimed_at - created_at over
// the operator's claimed orders; completion is completed_at - claimed_at over
// their completed ones. "Today" is the calendar day of now in now's location.
func AdminWorkload(orders []*models.WorkOrder, now time.Time) map[uuid.UUID]*Workload {
	out := make(map[uuid.UUID]*Workload)
	waits := make(map[uuid.UUID]*mean)
	completions := make(map[uuid.UUID]*mean)
	y, m, d := now.Date()
	for _, o := range orders {
		if o.AssigneeID == nil {
			continue
		}
		id := *o.AssigneeID
		w, ok := out[id]
		if !ok {
			w = &Workload{AdminID: id}
			out[id] = w
			waits[id] = &mean{}
			completions[id] = &mean{}
		}
		w.Assigned++
		created := o.CreatedAt
		waits[id].add(&created, o.ClaimedAt)
		switch o.Status {
		case models.OrderStatusClaimed:
			w.InProgress++
		case models.OrderStatusCompleted:
			w.Completed++
			completions[id].add(o.ClaimedAt, o.CompletedAt)
			if o.CompletedAt != nil {
				cy, cm, cd := o.CompletedAt.In(now.Location()).Date()
				if cy == y && cm == m && cd == d {
					w.CompletedToday++
				}
			}
		}
	}
	for id, w := range out {
		w.AvgWait = waits[id].value()
		w.AvgCompletion = completions[id].value()
	}
	return out
}

// GlobalTimeStats averages over every order that has the timestamps a figure
// needs. Cancelled orders are left out of completion and total time because
// their completed_at marks withdrawal, not delivery.
func GlobalTimeStats(orders []*models.WorkOrder) TimeStats {
	var wait, completion, total mean
	for _, o := range orders {
		created := o.CreatedAt
		wait.add(&created, o.ClaimedAt)
		if o.Status != models.OrderStatusCompleted {
			continue
		}
		completion.add(o.ClaimedAt, o.CompletedAt)
		total.add(&created, o.CompletedAt)
	}
	return TimeStats{
		AvgWait:           wait.value(),
		AvgCompletion:     completion.value(),
		AvgTotal:          total.value(),
		WaitSamples:       wait.n,
		CompletionSamples: completion.n,
		TotalSamples:      total.n,
	}
}
