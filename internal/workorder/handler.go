package workorder

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/webforge/backend/internal/artifact"
	"github.com/webforge/backend/internal/identity"
	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/respond"
)

// MaxArtifactBytes limits an uploaded artifact archive.
const MaxArtifactBytes = 64 << 20

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

type submitRequest struct {
	TeamID *uuid.UUID        `json:"team_id"`
	Items  []json.RawMessage `json:"items"`
}

type submitResponse struct {
	OrderIDs []uuid.UUID         `json:"order_ids"`
	Orders   []*models.WorkOrder `json:"orders"`
}

// Submit creates orders for the caller's team. Admins name the team explicitly.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor := identity.ActorFromCtx(r.Context())
	var req submitRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "submit work orders", err)
		return
	}
	teamID := req.TeamID
	if teamID == nil {
		teamID = actor.TeamID
	}
	if teamID == nil {
		respond.Error(w, h.log, "submit work orders", models.Invalid("team_id is required"))
		return
	}
	if !actor.CanActForTeam(*teamID) {
		respond.Message(w, http.StatusForbidden, "not a member of this team")
		return
	}
	orders, err := h.svc.Submit(r.Context(), SubmitRequest{TeamID: *teamID, RequesterID: actor.ID, Items: req.Items})
	if err != nil {
		respond.Error(w, h.log, "submit work orders", err)
		return
	}
	resp := submitResponse{Orders: orders}
	for _, o := range orders {
		resp.OrderIDs = append(resp.OrderIDs, o.ID)
	}
	respond.JSON(w, http.StatusCreated, resp)
}

// List filters by team_id, status and assignee_id. Members only see their team.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := identity.ActorFromCtx(r.Context())
	var f models.OrderFilter
	var err error
	if f.TeamID, err = respond.QueryID(r, "team_id"); err != nil {
		respond.Error(w, h.log, "list work orders", err)
		return
	}
	if f.AssigneeID, err = respond.QueryID(r, "assignee_id"); err != nil {
		respond.Error(w, h.log, "list work orders", err)
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
		respond.Error(w, h.log, "list work orders", err)
		return
	}
	if list == nil {
		list = []*models.WorkOrder{}
	}
	respond.JSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, ok := h.visibleOrder(w, r, "get work order")
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "claim work order", err)
		return
	}
	o, err := h.svc.Claim(r.Context(), id, identity.ActorFromCtx(r.Context()).ID)
	if err != nil {
		respond.Error(w, h.log, "claim work order", err)
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

type completeRequest struct {
	ArtifactRef     string `json:"artifact_ref"`
	FinalPriceCents *int64 `json:"final_price_cents"`
	Note            string `json:"note"`
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "complete work order", err)
		return
	}
	var req completeRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "complete work order", err)
		return
	}
	o, err := h.svc.Complete(r.Context(), CompleteRequest{
		OrderID:         id,
		ArtifactRef:     req.ArtifactRef,
		FinalPriceCents: req.FinalPriceCents,
		Note:            req.Note,
		ActorID:         identity.ActorFromCtx(r.Context()).ID,
	})
	if err != nil {
		respond.Error(w, h.log, "complete work order", err)
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel is open to admins and to members of the order's team.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	o, ok := h.visibleOrder(w, r, "cancel work order")
	if !ok {
		return
	}
	var req cancelRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "cancel work order", err)
		return
	}
	o, err := h.svc.Cancel(r.Context(), o.ID, req.Reason, identity.ActorFromCtx(r.Context()).ID)
	if err != nil {
		respond.Error(w, h.log, "cancel work order", err)
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

// UploadArtifact stores the request body as the order's artifact archive and
// returns the ref to pass to complete.
func (h *Handler) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, "upload artifact", err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxArtifactBytes))
	if err != nil {
		respond.Error(w, h.log, "upload artifact", models.Invalid("read body: %v", err))
		return
	}
	if _, err := artifact.Inspect(data); err != nil {
		respond.Error(w, h.log, "upload artifact", err)
		return
	}
	ref, err := h.svc.StoreArtifact(r.Context(), id, data)
	if err != nil {
		respond.Error(w, h.log, "upload artifact", err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]string{"artifact_ref": ref})
}

type bulkRequest struct {
	Op           string               `json:"op"`
	IDs          []uuid.UUID          `json:"ids"`
	Reason       string               `json:"reason"`
	Note         string               `json:"note"`
	ArtifactRefs map[uuid.UUID]string `json:"artifact_refs"`
}

func (h *Handler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.log, "bulk transition", err)
		return
	}
	res, err := h.svc.BulkTransition(r.Context(), BulkRequest{
		Op:           req.Op,
		IDs:          req.IDs,
		ActorID:      identity.ActorFromCtx(r.Context()).ID,
		Reason:       req.Reason,
		Note:         req.Note,
		ArtifactRefs: req.ArtifactRefs,
	})
	if err != nil {
		respond.Error(w, h.log, "bulk transition", err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) visibleOrder(w http.ResponseWriter, r *http.Request, op string) (*models.WorkOrder, bool) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.log, op, err)
		return nil, false
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, h.log, op, err)
		return nil, false
	}
	if !identity.ActorFromCtx(r.Context()).CanActForTeam(o.TeamID) {
		respond.Message(w, http.StatusForbidden, "not a member of this team")
		return nil, false
	}
	return o, true
}
