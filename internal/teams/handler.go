package teams

import (
	"log/slog"
	"net/http"

	"github.com/webforge/backend/internal/identity"
	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/respond"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "create team", err)
		return
	}
	actor := identity.ActorFromCtx(r.Context())
	req.ActorID = &actor.ID
	t, err := h.svc.Create(r.Context(), req)
	if err != nil {
		respond.Error(w, h.log, "create team", err)
		return
	}
	respond.JSON(w, http.StatusCreated, t)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		respond.Error(w, h.log, "list teams", err)
		return
	}
	if list == nil {
		list = []*models.Team{}
	}
	respond.JSON(w, http.StatusOK, list)
}

// Get is open to admins and to members of the team.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "get team", err)
		return
	}
	if !identity.ActorFromCtx(r.Context()).CanActForTeam(id) {
		respond.Message(w, http.StatusForbidden, "not a member of this team")
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, "get team", err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

type creditLimitRequest struct {
	CreditLimitCents int64 `json:"credit_limit_cents"`
}

func (h *Handler) SetCreditLimit(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "set credit limit", err)
		return
	}
	var req creditLimitRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "set credit limit", err)
		return
	}
	t, err := h.svc.SetCreditLimit(r.Context(), id, req.CreditLimitCents)
	if err != nil {
		respond.Error(w, h.log, "set credit limit", err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

type adjustmentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note"`
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "adjust balance", err)
		return
	}
	var req adjustmentRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "adjust balance", err)
		return
	}
	actor := identity.ActorFromCtx(r.Context())
	entry, err := h.svc.Adjust(r.Context(), id, req.AmountCents, req.Note, &actor.ID)
	if err != nil {
		respond.Error(w, h.log, "adjust balance", err)
		return
	}
	respond.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "list ledger", err)
		return
	}
	if !identity.ActorFromCtx(r.Context()).CanActForTeam(id) {
		respond.Message(w, http.StatusForbidden, "not a member of this team")
		return
	}
	entries, err := h.svc.Statement(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, "list ledger", err)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	respond.JSON(w, http.StatusOK, entries)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "reconcile", err)
		return
	}
	rec, err := h.svc.Reconcile(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, "reconcile", err)
		return
	}
	if !rec.Consistent {
		h.log.Warn("ledger out of balance", "team_id", id, "balance_cents", rec.BalanceCents, "ledger_sum_cents", rec.LedgerSumCents)
	}
	respond.JSON(w, http.StatusOK, rec)
}

func (h *Handler) GetTariff(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "get tariff", err)
		return
	}
	if !identity.ActorFromCtx(r.Context()).CanActForTeam(id) {
		respond.Message(w, http.StatusForbidden, "not a member of this team")
		return
	}
	t, err := h.svc.Tariff(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, "get tariff", err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

func (h *Handler) PutTariff(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "set tariff", err)
		return
	}
	var t models.PricingTariff
	if err := respond.Decode(r, &t); err != nil {
		respond.Error(w, h.log, "set tariff", err)
		return
	}
	t.TeamID = id
	if err := h.svc.SetTariff(r.Context(), &t); err != nil {
		respond.Error(w, h.log, "set tariff", err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}
