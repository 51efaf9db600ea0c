package teams

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/webforge/backend/internal/events"
	"github.com/webforge/backend/internal/identity"
	"github.com/webforge/backend/internal/ledger"
	"github.com/webforge/backend/internal/memstore"
	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/pricing"
)

// --- recordingBus keeps emitted events. ---

type recordingBus struct{ events []events.Event }

func (b *recordingBus) Emit(_ context.Context, evs ...events.Event) error {
	b.events = append(b.events, evs...)
	return nil
}

func newService(t *testing.T) (*Service, *recordingBus) {
	t.Helper()
	store := memstore.New()
	resolver, err := pricing.NewResolver(store.Tariffs(), 16, nil)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	bus := &recordingBus{}
	return NewService(store.Teams(), ledger.NewService(store.Ledger(), store), resolver, store, bus, nil), bus
}

func TestCreateBooksOpeningBalance(t *testing.T) {
	svc, bus := newService(t)
	ctx := context.Background()

	team, err := svc.Create(ctx, CreateRequest{Name: " Acme ", CreditLimitCents: 500, OpeningBalanceCents: 10000})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if team.Name != "Acme" || team.BalanceCents != 10000 {
		t.Errorf("team: got %+v", team)
	}
	rec, err := svc.Reconcile(ctx, team.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rec.Consistent || rec.Entries != 1 {
		t.Errorf("reconcile: %+v", rec)
	}
	if len(bus.events) != 1 || bus.events[0].Type != events.TypeBalanceChanged {
		t.Errorf("events: got %+v", bus.events)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Create(context.Background(), CreateRequest{Name: ""}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("empty name: got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateRequest{Name: "x", CreditLimitCents: -1}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("negative limit: got %v", err)
	}
}

func TestAdjustAndCreditLimit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	team, _ := svc.Create(ctx, CreateRequest{Name: "Acme"})

	admin := uuid.New()
	entry, err := svc.Adjust(ctx, team.ID, 2500, "top-up", &admin)
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if entry.BalanceBeforeCents != 0 || entry.BalanceAfterCents != 2500 {
		t.Errorf("entry: %+v", entry)
	}
	if _, err := svc.Adjust(ctx, team.ID, 0, "noop", &admin); !errors.Is(err, models.ErrValidation) {
		t.Errorf("zero adjustment: got %v", err)
	}
	if _, err := svc.SetCreditLimit(ctx, team.ID, -5); !errors.Is(err, models.ErrValidation) {
		t.Errorf("negative limit: got %v", err)
	}
	got, err := svc.SetCreditLimit(ctx, team.ID, 700)
	if err != nil || got.CreditLimitCents != 700 {
		t.Errorf("SetCreditLimit: got %+v, %v", got, err)
	}
	if _, err := svc.SetCreditLimit(ctx, uuid.New(), 1); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing team: got %v", err)
	}
}

func TestTariffRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	team, _ := svc.Create(ctx, CreateRequest{Name: "Acme"})

	def, err := svc.Tariff(ctx, team.ID)
	if err != nil || def.SinglePageCents != models.DefaultSinglePageCents {
		t.Fatalf("default tariff: %+v, %v", def, err)
	}
	if err := svc.SetTariff(ctx, &models.PricingTariff{TeamID: team.ID, SinglePageCents: 100, MultiPageCents: 200}); err != nil {
		t.Fatalf("SetTariff: %v", err)
	}
	got, _ := svc.Tariff(ctx, team.ID)
	if got.SinglePageCents != 100 {
		t.Errorf("tariff after update: %+v", got)
	}
	if err := svc.SetTariff(ctx, &models.PricingTariff{TeamID: uuid.New()}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown team: got %v", err)
	}
}

func TestHandlerGetChecksMembership(t *testing.T) {
	svc, _ := newService(t)
	team, _ := svc.Create(context.Background(), CreateRequest{Name: "Acme"})
	h := NewHandler(svc, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/teams/{id}", h.Get)

	other := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/teams/"+team.ID.String(), nil)
	req = req.WithContext(identity.WithActor(req.Context(), &identity.Actor{ID: uuid.New(), Role: identity.RoleMember, TeamID: &other}))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("outsider: got %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/teams/"+team.ID.String(), nil)
	req = req.WithContext(identity.WithActor(req.Context(), &identity.Actor{ID: uuid.New(), Role: identity.RoleMember, TeamID: &team.ID}))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("member: got %d, want 200", rec.Code)
	}
}
