package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/webforge/backend/internal/appeal"
	"github.com/webforge/backend/internal/blob"
	"github.com/webforge/backend/internal/events"
	"github.com/webforge/backend/internal/identity"
	"github.com/webforge/backend/internal/ledger"
	"github.com/webforge/backend/internal/memstore"
	"github.com/webforge/backend/internal/notify"
	"github.com/webforge/backend/internal/pricing"
	"github.com/webforge/backend/internal/stats"
	"github.com/webforge/backend/internal/teams"
	"github.com/webforge/backend/internal/workorder"
)

type fixture struct {
	handler http.Handler
	tokens  *identity.JWTProvider
	teamID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	resolver, err := pricing.NewResolver(store.Tariffs(), 16, nil)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	ledgerSvc := ledger.NewService(store.Ledger(), store)
	bus := events.LogBus{}
	notifier := notify.Direct{Sink: notify.LogSink{}}

	teamSvc := teams.NewService(store.Teams(), ledgerSvc, resolver, store, bus, nil)
	orderSvc := workorder.NewService(workorder.Deps{
		Store: store.Orders(), Teams: store.Teams(), Pricer: resolver, Ledger: ledgerSvc,
		Blobs: blob.NewMemoryStore(), Txs: store, Notifier: notifier, Bus: bus,
	}, workorder.Config{})
	appealSvc := appeal.NewService(appeal.Deps{
		Store: store.Appeals(), Orders: store.Orders(), Ledger: ledgerSvc,
		Txs: store, Notifier: notifier, Bus: bus,
	}, 0)

	team, err := teamSvc.Create(t.Context(), teams.CreateRequest{Name: "acme", OpeningBalanceCents: 10000})
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	tokens, err := identity.NewJWTProvider("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}
	h := New(Handlers{
		Orders:  workorder.NewHandler(orderSvc, nil),
		Appeals: appeal.NewHandler(appealSvc, store.Orders(), nil),
		Teams:   teams.NewHandler(teamSvc, nil),
		Pricing: pricing.NewHandler(resolver, nil),
		Stats:   stats.NewHandler(store.Orders(), nil),
	}, tokens, []string{"*"})
	return &fixture{handler: h, tokens: tokens, teamID: team.ID}
}

func (f *fixture) do(t *testing.T, a *identity.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if a != nil {
		tok, err := f.tokens.Issue(*a)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, nil, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, nil, http.MethodGet, "/v1/work-orders", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", rec.Code)
	}
}

func TestOperatorRoutesRejectMembers(t *testing.T) {
	f := newFixture(t)
	member := &identity.Actor{ID: uuid.New(), Role: identity.RoleMember, TeamID: &f.teamID}
	admin := &identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin}

	for _, path := range []string{
		"/v1/work-orders/" + uuid.NewString() + "/claim",
		"/v1/appeals/bulk-resolve",
		"/v1/teams",
	} {
		if rec := f.do(t, member, http.MethodPost, path, "{}"); rec.Code != http.StatusForbidden {
			t.Errorf("member POST %s: got %d, want 403", path, rec.Code)
		}
	}
	if rec := f.do(t, member, http.MethodGet, "/v1/stats/workload", ""); rec.Code != http.StatusForbidden {
		t.Errorf("member stats: got %d, want 403", rec.Code)
	}
	if rec := f.do(t, admin, http.MethodGet, "/v1/stats/workload", ""); rec.Code != http.StatusOK {
		t.Errorf("admin stats: got %d %s", rec.Code, rec.Body)
	}
}

func TestMemberSubmitsAndReadsTeam(t *testing.T) {
	f := newFixture(t)
	member := &identity.Actor{ID: uuid.New(), Role: identity.RoleMember, TeamID: &f.teamID}

	rec := f.do(t, member, http.MethodPost, "/v1/work-orders", `{"items":[{"work_type":"single_page"}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: got %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, member, http.MethodGet, "/v1/teams/"+f.teamID.String(), ""); rec.Code != http.StatusOK {
		t.Errorf("own team: got %d", rec.Code)
	}
	if rec := f.do(t, member, http.MethodGet, "/v1/teams/"+uuid.NewString(), ""); rec.Code != http.StatusForbidden {
		t.Errorf("other team: got %d, want 403", rec.Code)
	}
	if rec := f.do(t, member, http.MethodGet, "/v1/pricing/quote?work_type=multi_page", ""); rec.Code != http.StatusOK {
		t.Errorf("quote: got %d %s", rec.Code, rec.Body)
	}
}
