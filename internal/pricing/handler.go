package pricing

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/webforge/backend/internal/identity"
	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/respond"
)

type Handler struct {
	resolver *Resolver
	log      *slog.Logger
}

func NewHandler(resolver *Resolver, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{resolver: resolver, log: log}
}

// Quote answers GET /v1/pricing/quote?team_id=&work_type=&ai_tier=. Members may
// omit team_id to price for their own team.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	actor := identity.ActorFromCtx(r.Context())
	teamID, err := respond.QueryID(r, "team_id")
	if err != nil {
		respond.Error(w, h.log, "quote", err)
		return
	}
	if teamID == nil {
		teamID = actor.TeamID
	}
	if teamID == nil {
		respond.Error(w, h.log, "quote", models.Invalid("team_id is required"))
		return
	}
	if !actor.CanActForTeam(*teamID) {
		respond.Message(w, http.StatusForbidden, "not a member of this team")
		return
	}
	q := r.URL.Query()
	quote, err := h.resolver.Resolve(r.Context(), *teamID, q.Get("work_type"), q.Get("ai_tier"))
	if err != nil {
		respond.Error(w, h.log, "quote", err)
		return
	}
	respond.JSON(w, http.StatusOK, struct {
		TeamID uuid.UUID `json:"team_id"`
		Quote
		Price string `json:"price"`
	}{*teamID, quote, models.FormatCents(quote.PriceCents)})
}
