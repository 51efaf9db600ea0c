package workorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zip"

	"github.com/webforge/backend/internal/blob"
	"github.com/webforge/backend/internal/events"
	"github.com/webforge/backend/internal/ledger"
	"github.com/webforge/backend/internal/memstore"
	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/notify"
	"github.com/webforge/backend/internal/pricing"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Dispatch(_ context.Context, ns ...notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, ns...)
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Emit(_ context.Context, evs ...events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evs...)
	return nil
}

func (b *recordingBus) count(typ string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// --- failingLedger rejects every entry. ---

type failingLedger struct {
	ledger.Service
	err error
}

func (f failingLedger) ApplyEntry(context.Context, pgx.Tx, ledger.Entry) (*models.LedgerEntry, error) {
	return nil, f.err
}

// --- failingSink always errors. ---

type failingSink struct{}

func (failingSink) Send(context.Context, []notify.Notification) error { return models.ErrDownstream }

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	store    *memstore.Store
	ledger   ledger.Service
	blobs    *blob.MemoryStore
	notifier *recordingNotifier
	bus      *recordingBus
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memstore.New()
	resolver, err := pricing.NewResolver(store.Tariffs(), 16, nil)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	h := &harness{
		store:    store,
		ledger:   ledger.NewService(store.Ledger(), store),
		blobs:    blob.NewMemoryStore(),
		notifier: &recordingNotifier{},
		bus:      &recordingBus{},
	}
	h.svc = NewService(Deps{
		Store:    store.Orders(),
		Teams:    store.Teams(),
		Pricer:   resolver,
		Ledger:   h.ledger,
		Blobs:    h.blobs,
		Txs:      store,
		Notifier: h.notifier,
		Bus:      h.bus,
	}, Config{BulkConcurrency: 3})
	return h
}

// team creates a team whose balance is booked through the ledger, with a flat
// single-page price.
func (h *harness) team(t *testing.T, balance, limit, singlePage int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	team := &models.Team{ID: uuid.New(), Name: "acme", CreditLimitCents: limit}
	if err := h.store.Teams().CreateTx(ctx, nil, team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	if balance != 0 {
		if _, err := h.ledger.Apply(ctx, ledger.Entry{TeamID: team.ID, Kind: models.LedgerKindAdjustment, AmountCents: balance}); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
	tariff := &models.PricingTariff{TeamID: team.ID, SinglePageCents: singlePage, MultiPageCents: singlePage * 3}
	if err := h.store.Tariffs().UpsertTariff(ctx, tariff); err != nil {
		t.Fatalf("seed tariff: %v", err)
	}
	return team.ID
}

func (h *harness) balance(t *testing.T, teamID uuid.UUID) int64 {
	t.Helper()
	b, err := h.store.Ledger().BalanceTx(context.Background(), nil, teamID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func (h *harness) submitOne(t *testing.T, teamID uuid.UUID) *models.WorkOrder {
	t.Helper()
	orders, err := h.svc.Submit(context.Background(), SubmitRequest{
		TeamID:      teamID,
		RequesterID: uuid.New(),
		Items:       []json.RawMessage{json.RawMessage(`{"work_type":"single_page","brief":"bakery landing page"}`)},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return orders[0]
}

func (h *harness) artifact(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("index.html")
	_, _ = w.Write([]byte("<html></html>"))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip: %v", err)
	}
	key := "artifacts/" + uuid.NewString() + ".zip"
	_ = h.blobs.Put(context.Background(), key, buf.Bytes())
	return key
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSubmitAndCompleteChargesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	teamID := h.team(t, 10000, 0, 3000)

	o := h.submitOne(t, teamID)
	if o.QuotedPriceCents != 3000 || o.Status != models.OrderStatusRequested || o.AITier != models.AITierNone {
		t.Fatalf("submitted order: %+v", o)
	}
	if got := h.balance(t, teamID); got != 10000 {
		t.Errorf("balance after submit: got %d, want 10000", got)
	}

	worker := uuid.New()
	if _, err := h.svc.Claim(ctx, o.ID, worker); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	done, err := h.svc.Complete(ctx, CompleteRequest{OrderID: o.ID, ArtifactRef: h.artifact(t), ActorID: worker})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != models.OrderStatusCompleted || done.CompletedAt == nil || *done.FinalPriceCents != 3000 {
		t.Errorf("completed order: %+v", done)
	}
	if got := h.balance(t, teamID); got != 7000 {
		t.Errorf("balance after complete: got %d, want 7000", got)
	}

	entries, _ := h.ledger.Statement(ctx, teamID)
	charge := entries[0]
	if charge.AmountCents != -3000 || charge.BalanceBeforeCents != 10000 || charge.BalanceAfterCents != 7000 {
		t.Errorf("charge entry: %+v", charge)
	}
	if charge.WorkOrderID == nil || *charge.WorkOrderID != o.ID {
		t.Error("charge should reference the order")
	}
	if h.bus.count(events.TypeOrderCompleted) != 1 || h.bus.count(events.TypeBalanceChanged) != 1 {
		t.Errorf("events: completed=%d balance=%d", h.bus.count(events.TypeOrderCompleted), h.bus.count(events.TypeBalanceChanged))
	}
}

func TestCompleteWithFinalPriceOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	teamID := h.team(t, 10000, 0, 3000)
	o := h.submitOne(t, teamID)
	_, _ = h.svc.Claim(ctx, o.ID, uuid.New())

	final := int64(4500)
	if _, err := h.svc.Complete(ctx, CompleteRequest{OrderID: o.ID, ArtifactRef: h.artifact(t), FinalPriceCents: &final}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := h.balance(t, teamID); got != 5500 {
		t.Errorf("balance: got %d, want 5500", got)
	}
}

func TestSubmitRejectsInsufficientCredit(t *testing.T) {
	h := newHarness(t)
	teamID := h.team(t, 1000, 0, 5000)

	_, err := h.svc.Submit(context.Background(), SubmitRequest{
		TeamID:      teamID,
		RequesterID: uuid.New(),
		Items:       []json.RawMessage{json.RawMessage(`{"work_type":"single_page"}`)},
	})
	if !errors.Is(err, models.ErrInsufficientCredit) {
		t.Fatalf("got %v, want ErrInsufficientCredit", err)
	}
	list, _ := h.svc.List(context.Background(), models.OrderFilter{TeamID: &teamID})
	if len(list) != 0 {
		t.Errorf("orders created: got %d, want 0", len(list))
	}
}

func TestSubmitCountsCreditLimitAndTotal(t *testing.T) {
	h := newHarness(t)
	teamID := h.team(t, 1000, 5000, 3000)
	item := json.RawMessage(`{"work_type":"single_page"}`)

	if _, err := h.svc.Submit(context.Background(), SubmitRequest{TeamID: teamID, RequesterID: uuid.New(), Items: []json.RawMessage{item, item}}); !errors.Is(err, models.ErrInsufficientCredit) {
		t.Errorf("two items over limit: got %v, want ErrInsufficientCredit", err)
	}
	orders, err := h.svc.Submit(context.Background(), SubmitRequest{TeamID: teamID, RequesterID: uuid.New(), Items: []json.RawMessage{item}})
	if err != nil || len(orders) != 1 {
		t.Errorf("one item within limit: got %d orders, %v", len(orders), err)
	}
}

func TestSubmitValidatesItems(t *testing.T) {
	h := newHarness(t)
	teamID := h.team(t, 100000, 0, 3000)
	bad := []json.RawMessage{
		json.RawMessage(`{"work_type":"shop"}`),
		json.RawMessage(`{"work_type":"single_page","attachments":[{"kind":"inline","path":"/etc/passwd","content":"x"}]}`),
		json.RawMessage(`{"work_type":"single_page","attachments":[{"kind":"url","url":"ftp://x"}]}`),
	}
	for _, raw := range bad {
		_, err := h.svc.Submit(context.Background(), SubmitRequest{TeamID: teamID, RequesterID: uuid.New(), Items: []json.RawMessage{raw}})
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("%s: got %v, want ErrValidation", raw, err)
		}
	}
	if _, err := h.svc.Submit(context.Background(), SubmitRequest{TeamID: uuid.New(), RequesterID: uuid.New(), Items: []json.RawMessage{json.RawMessage(`{"work_type":"single_page"}`)}}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown team: got %v, want ErrNotFound", err)
	}
}

func TestConcurrentClaimExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	teamID := h.team(t, 10000, 0, 3000)
	o := h.submitOne(t, teamID)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []uuid.UUID
	conflicts := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := uuid.New()
			_, err := h.svc.Claim(context.Background(), o.ID, worker)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, worker)
			case errors.Is(err, models.ErrStateConflict):
				conflicts++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 || conflicts != workers-1 {
		t.Fatalf("winners=%d conflicts=%d, want 1 and %d", len(winners), conflicts, workers-1)
	}
	got, _ := h.svc.Get(context.Background(), o.ID)
	if got.AssigneeID == nil || *got.AssigneeID != winners[0] {
		t.Error("assignee should be the single winner")
	}
}

func TestCompleteRejectsBadArtifactWithoutSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	teamID := h.team(t, 10000, 0, 3000)
	o := h.submitOne(t, teamID)
	_, _ = h.svc.Claim(ctx, o.ID, uuid.New())

	_ = h.blobs.Put(ctx, "artifacts/garbage", []byte("definitely not a zip"))
	for _, ref := range []string{"artifacts/garbage", "artifacts/missing"} {
		_, err := h.svc.Complete(ctx, CompleteRequest{OrderID: o.ID, ArtifactRef: ref})
		if !errors.Is(err, models.ErrArtifactFormat) {
			t.Errorf("%s: got %v, want ErrArtifactFormat", ref, err)
		}
	}
	got, _ := h.svc.Get(ctx, o.ID)
	if got.Status != models.OrderStatusClaimed {
		t.Errorf("status: got %s, want claimed", got.Status)
	}
	if b := h.balance(t, teamID); b != 10000 {
		t.Errorf("balance: got %d, want 10000", b)
	}
}

func TestCompleteRequiresClaim(t *testing.T) {
	h := newHarness(t)
	teamID := h.team(t, 10000, 0, 3000)
	o := h.submitOne(t, teamID)

	_, err := h.svc.Complete(context.Background(), CompleteRequest{OrderID: o.ID, ArtifactRef: h.artifact(t)})
	if !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("got %v, want ErrInvalidState", err)
	}
	if _, err := h.svc.Complete(context.Background(), CompleteRequest{OrderID: uuid.New(), ArtifactRef: "x"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing order: got %v, want ErrNotFound", err)
	}
}

func TestCompleteRollsBackWhenLedgerFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	teamID := h.team(t, 10000, 0, 3000)
	o := h.submitOne(t, teamID)
	_, _ = h.svc.Claim(ctx, o.ID, uuid.New())

	boom := errors.New("ledger unavailable")
	h.svc.ledger = failingLedger{Service: h.ledger, err: boom}
	if _, err := h.svc.Complete(ctx, CompleteRequest{OrderID: o.ID, ArtifactRef: h.artifact(t)}); !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	got, _ := h.svc.Get(ctx, o.ID)
	if got.Status != models.OrderStatusClaimed || got.CompletedAt != nil {
		t.Errorf("order should stay claimed: %+v", got)
	}
	if h.bus.count(events.TypeOrderCompleted) != 0 {
		t.Error("no completion event for a rolled back order")
	}
}

func TestCancelRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	teamID := h.team(t, 10000, 0, 3000)

	open := h.submitOne(t, teamID)
	if _, err := h.svc.Cancel(ctx, open.ID, "  ", uuid.New()); !errors.Is(err, models.ErrValidation) {
		t.Errorf("blank reason: got %v, want ErrValidation", err)
	}
	got, err := h.svc.Cancel(ctx, open.ID, "changed our mind", uuid.New())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != models.OrderStatusCancelled || got.CompletedAt == nil || *got.CancelReason != "changed our mind" {
		t.Errorf("cancelled order: %+v", got)
	}
	if _, err := h.svc.Claim(ctx, open.ID, uuid.New()); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("claim cancelled: got %v, want ErrInvalidState", err)
	}

	claimed := h.submitOne(t, teamID)
	_, _ = h.svc.Claim(ctx, claimed.ID, uuid.New())
	if _, err := h.svc.Cancel(ctx, claimed.ID, "too slow", uuid.New()); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("cancel claimed: got %v, want ErrInvalidState", err)
	}
	if b := h.balance(t, teamID); b != 10000 {
		t.Errorf("cancel must not touch the ledger: balance %d", b)
	}
}

func TestBulkClaimPartialSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	teamID := h.team(t, 100000, 0, 3000)

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		ids = append(ids, h.submitOne(t, teamID).ID)
	}
	_, _ = h.svc.Claim(ctx, ids[1], uuid.New())
	before := len(h.notifier.all())
	missing := uuid.New()

	res, err := h.svc.BulkTransition(ctx, BulkRequest{Op: OpClaim, IDs: append(ids, missing), ActorID: uuid.New()})
	if err != nil {
		t.Fatalf("BulkTransition: %v", err)
	}
	if len(res.Succeeded) != 3 || len(res.Failed) != 2 {
		t.Fatalf("result: %+v", res)
	}
	if res.Failed[0].ID != ids[1] || res.Failed[1].ID != missing {
		t.Errorf("failed ids: %+v", res.Failed)
	}

	sent := h.notifier.all()[before:]
	if len(sent) != 1 || sent[0].Kind != notify.KindBulkOrders || len(sent[0].Items) != 3 {
		t.Errorf("bulk notifications: %+v", sent)
	}
}

func TestBulkCompleteChargesEachItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	teamID := h.team(t, 10000, 0, 1000)
	worker := uuid.New()

	refs := map[uuid.UUID]string{}
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		o := h.submitOne(t, teamID)
		_, _ = h.svc.Claim(ctx, o.ID, worker)
		ids = append(ids, o.ID)
		if i != 2 {
			refs[o.ID] = h.artifact(t)
		}
	}

	res, err := h.svc.BulkTransition(ctx, BulkRequest{Op: OpComplete, IDs: ids, ActorID: worker, ArtifactRefs: refs})
	if err != nil {
		t.Fatalf("BulkTransition: %v", err)
	}
	if len(res.Succeeded) != 4 || len(res.Failed) != 1 || res.Failed[0].ID != ids[2] {
		t.Fatalf("result: %+v", res)
	}
	if b := h.balance(t, teamID); b != 6000 {
		t.Errorf("balance: got %d, want 6000", b)
	}
	rec, _ := h.ledger.Reconcile(ctx, teamID)
	if !rec.Consistent {
		t.Errorf("ledger inconsistent: %+v", rec)
	}
}

func TestBulkRejectsUnknownOp(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.BulkTransition(context.Background(), BulkRequest{Op: "archive", IDs: []uuid.UUID{uuid.New()}}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestNotificationFailureDoesNotBlockClaim(t *testing.T) {
	h := newHarness(t)
	h.svc.notifier = notify.Direct{Sink: failingSink{}}
	teamID := h.team(t, 10000, 0, 3000)
	o := h.submitOne(t, teamID)

	got, err := h.svc.Claim(context.Background(), o.ID, uuid.New())
	if err != nil || got.Status != models.OrderStatusClaimed {
		t.Errorf("claim with broken sink: %+v, %v", got, err)
	}
}
