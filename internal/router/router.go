package router

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/webforge/backend/internal/appeal"
	"github.com/webforge/backend/internal/identity"
	"github.com/webforge/backend/internal/pricing"
	"github.com/webforge/backend/internal/respond"
	"github.com/webforge/backend/internal/stats"
	"github.com/webforge/backend/internal/teams"
	"github.com/webforge/backend/internal/workorder"
)

// Handlers groups the HTTP handlers served under /v1.
type Handlers struct {
	Orders  *workorder.Handler
	Appeals *appeal.Handler
	Teams   *teams.Handler
	Pricing *pricing.Handler
	Stats   *stats.Handler
}

// New returns the API handler. Everything under /v1 requires a verified token;
// /healthz is public.
func New(h Handlers, auth identity.Provider, allowedOrigins []string) http.Handler {
	api := http.NewServeMux()
	admin := identity.RequireAdmin

	api.HandleFunc("POST /v1/work-orders", h.Orders.Submit)
	api.HandleFunc("GET /v1/work-orders", h.Orders.List)
	api.HandleFunc("GET /v1/work-orders/{id}", h.Orders.Get)
	api.HandleFunc("POST /v1/work-orders/{id}/claim", admin(h.Orders.Claim))
	api.HandleFunc("POST /v1/work-orders/{id}/artifact", admin(h.Orders.UploadArtifact))
	api.HandleFunc("POST /v1/work-orders/{id}/complete", admin(h.Orders.Complete))
	api.HandleFunc("POST /v1/work-orders/{id}/cancel", h.Orders.Cancel)
	api.HandleFunc("POST /v1/work-orders/bulk", admin(h.Orders.Bulk))

	api.HandleFunc("POST /v1/appeals", h.Appeals.File)
	api.HandleFunc("GET /v1/appeals", h.Appeals.List)
	api.HandleFunc("GET /v1/appeals/{id}", h.Appeals.Get)
	api.HandleFunc("POST /v1/appeals/{id}/resolve", admin(h.Appeals.Resolve))
	api.HandleFunc("POST /v1/appeals/bulk-resolve", admin(h.Appeals.BulkResolve))

	api.HandleFunc("POST /v1/teams", admin(h.Teams.Create))
	api.HandleFunc("GET /v1/teams", admin(h.Teams.List))
	api.HandleFunc("GET /v1/teams/{id}", h.Teams.Get)
	api.HandleFunc("PATCH /v1/teams/{id}/credit-limit", admin(h.Teams.SetCreditLimit))
	api.HandleFunc("POST /v1/teams/{id}/adjustments", admin(h.Teams.Adjust))
	api.HandleFunc("GET /v1/teams/{id}/ledger", admin(h.Teams.Ledger))
	api.HandleFunc("GET /v1/teams/{id}/reconcile", admin(h.Teams.Reconcile))
	api.HandleFunc("GET /v1/teams/{id}/tariff", admin(h.Teams.GetTariff))
	api.HandleFunc("PUT /v1/teams/{id}/tariff", admin(h.Teams.PutTariff))
	api.HandleFunc("GET /v1/pricing/quote", h.Pricing.Quote)

	api.HandleFunc("GET /v1/stats/workload", admin(h.Stats.Workload))
	api.HandleFunc("GET /v1/stats/timing", admin(h.Stats.Timing))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/v1/", identity.Middleware(auth)(api))

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)
}
