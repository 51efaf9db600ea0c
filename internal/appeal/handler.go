package appeal

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/webforge/backend/internal/identity"
	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/respond"
)

type Handler struct {
	svc    *Service
	orders OrderReader
	log    *slog.Logger
}

func NewHandler(svc *Service, orders OrderReader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, orders: orders, log: log}
}

type fileRequest struct {
	WorkOrderID       uuid.UUID       `json:"work_order_id"`
	Reason            string          `json:"reason"`
	RefundAmountCents int64           `json:"refund_amount_cents"`
	Evidence          json.RawMessage `json:"evidence"`
}

func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	actor := identity.ActorFromCtx(r.Context())
	var req fileRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "file appeal", err)
		return
	}
	order, err := h.orders.GetByID(r.Context(), req.WorkOrderID)
	if err != nil {
		respond.Error(w, h.log, "file appeal", err)
		return
	}
	if !actor.CanActForTeam(order.TeamID) {
		respond.Message(w, http.StatusForbidden, "not a member of this team")
		return
	}
	a, err := h.svc.File(r.Context(), FileRequest{
		WorkOrderID: req.WorkOrderID,
		RequesterID: actor.ID,
		Reason:      req.Reason,
		RefundCents: req.RefundAmountCents,
		Evidence:    req.Evidence,
	})
	if err != nil {
		respond.Error(w, h.log, "file appeal", err)
		return
	}
	respond.JSON(w, http.StatusCreated, a)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := identity.ActorFromCtx(r.Context())
	var f models.AppealFilter
	var err error
	if f.WorkOrderID, err = respond.QueryID(r, "work_order_id"); err != nil {
		respond.Error(w, h.log, "list appeals", err)
		return
	}
	if f.TeamID, err = respond.QueryID(r, "team_id"); err != nil {
		respond.Error(w, h.log, "list appeals", err)
		return
	}
	f.Status = r.URL.Query().Get("status")
	if !actor.IsAdmin() {
		if actor.TeamID == nil || (f.TeamID != nil && *f.TeamID != *actor.TeamID) {
			respond.Message(w, http.StatusForbidden, "not a member of this team")
			return
		}
		f.TeamID = actor.TeamID
	}
	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		respond.Error(w, h.log, "list appeals", err)
		return
	}
	if list == nil {
		list = []*models.Appeal{}
	}
	respond.JSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "get appeal", err)
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, "get appeal", err)
		return
	}
	if !identity.ActorFromCtx(r.Context()).CanActForTeam(a.TeamID) {
		respond.Message(w, http.StatusForbidden, "not a member of this team")
		return
	}
	respond.JSON(w, http.StatusOK, a)
}

type resolveRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "resolve appeal", err)
		return
	}
	var req resolveRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "resolve appeal", err)
		return
	}
	a, err := h.svc.Resolve(r.Context(), ResolveRequest{
		AppealID:   id,
		Decision:   req.Decision,
		Comment:    req.Comment,
		ResolverID: identity.ActorFromCtx(r.Context()).ID,
	})
	if err != nil {
		respond.Error(w, h.log, "resolve appeal", err)
		return
	}
	respond.JSON(w, http.StatusOK, a)
}

type bulkResolveRequest struct {
	IDs      []uuid.UUID `json:"ids"`
	Decision string      `json:"decision"`
	Comment  string      `json:"comment"`
}

func (h *Handler) BulkResolve(w http.ResponseWriter, r *http.Request) {
	var req bulkResolveRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "bulk resolve", err)
		return
	}
	res, err := h.svc.BulkResolve(r.Context(), req.IDs, req.Decision, req.Comment, identity.ActorFromCtx(r.Context()).ID)
	if err != nil {
		respond.Error(w, h.log, "bulk resolve", err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}
