package stats

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/respond"
)

// OrderLister loads the order history figures are computed from.
type OrderLister interface {
	List(ctx context.Context, f models.OrderFilter) ([]*models.WorkOrder, error)
}

type Handler struct {
	orders OrderLister
	log    *slog.Logger
	now    func() time.Time
}

func NewHandler(orders OrderLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{orders: orders, log: log, now: time.Now}
}

func (h *Handler) load(r *http.Request) ([]*models.WorkOrder, error) {
	var f models.OrderFilter
	var err error
	if f.TeamID, err = respond.QueryID(r, "team_id"); err != nil {
		return nil, err
	}
	return h.orders.List(r.Context(), f)
}

// Workload answers GET /v1/stats/workload. tz picks the day boundary for
// completed_today and defaults to UTC.
func (h *Handler) Workload(w http.ResponseWriter, r *http.Request) {
	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			respond.Error(w, h.log, "workload stats", models.Invalid("unknown tz %q", tz))
			return
		}
		loc = l
	}
	orders, err := h.load(r)
	if err != nil {
		respond.Error(w, h.log, "workload stats", err)
		return
	}
	byAdmin := AdminWorkload(orders, h.now().In(loc))
	list := make([]*Workload, 0, len(byAdmin))
	for _, wl := range byAdmin {
		list = append(list, wl)
	}
	slices.SortFunc(list, func(a, b *Workload) int {
		return strings.Compare(a.AdminID.String(), b.AdminID.String())
	})
	respond.JSON(w, http.StatusOK, list)
}

func (h *Handler) Timing(w http.ResponseWriter, r *http.Request) {
	orders, err := h.load(r)
	if err != nil {
		respond.Error(w, h.log, "timing stats", err)
		return
	}
	respond.JSON(w, http.StatusOK, GlobalTimeStats(orders))
}
