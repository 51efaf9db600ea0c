// Package workorder runs the work order lifecycle: submission with credit
// admission, exclusive claim, completion with charge, and cancellation.
package workorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webforge/backend/internal/artifact"
	"github.com/webforge/backend/internal/blob"
	"github.com/webforge/backend/internal/db"
	"github.com/webforge/backend/internal/events"
	"github.com/webforge/backend/internal/intake"
	"github.com/webforge/backend/internal/ledger"
	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/notify"
	"github.com/webforge/backend/internal/pricing"
)

// MaxItemsPerSubmit caps how many orders one submission may create.
const MaxItemsPerSubmit = 50

// Store persists work orders. Claim, CompleteTx and Cancel are conditional on the
// current status and return models.ErrInvalidState when it does not match.
type Store interface {
	CreateTx(ctx context.Context, tx pgx.Tx, o *models.WorkOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkOrder, error)
	List(ctx context.Context, f models.OrderFilter) ([]*models.WorkOrder, error)
	Claim(ctx context.Context, id, workerID uuid.UUID, at time.Time) (*models.WorkOrder, error)
	CompleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, c models.Completion) (*models.WorkOrder, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.WorkOrder, error)
}

// TeamReader is the slice of team storage admission needs.
type TeamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error)
}

// Pricer quotes an order.
type Pricer interface {
	Resolve(ctx context.Context, teamID uuid.UUID, workType, aiTier string) (pricing.Quote, error)
}

type SubmitRequest struct {
	TeamID      uuid.UUID
	RequesterID uuid.UUID
	Items       []json.RawMessage
}

type CompleteRequest struct {
	OrderID         uuid.UUID
	ArtifactRef     string
	FinalPriceCents *int64
	Note            string
	ActorID         uuid.UUID
}

type Config struct {
	BulkConcurrency int
}

type Service struct {
	store     Store
	teams     TeamReader
	pricer    Pricer
	ledger    ledger.Service
	blobs     blob.Store
	validator *intake.Validator
	txs       db.TxBeginner
	notifier  notify.Dispatcher
	bus       events.Bus
	log       *slog.Logger
	cfg       Config
	now       func() time.Time
}

type Deps struct {
	Store     Store
	Teams     TeamReader
	Pricer    Pricer
	Ledger    ledger.Service
	Blobs     blob.Store
	Validator *intake.Validator
	Txs       db.TxBeginner
	Notifier  notify.Dispatcher
	Bus       events.Bus
	Log       *slog.Logger
}

func NewService(d Deps, cfg Config) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Validator == nil {
		d.Validator = intake.MustValidator()
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 4
	}
	return &Service{
		store:     d.Store,
		teams:     d.Teams,
		pricer:    d.Pricer,
		ledger:    d.Ledger,
		blobs:     d.Blobs,
		validator: d.Validator,
		txs:       d.Txs,
		notifier:  d.Notifier,
		bus:       d.Bus,
		log:       d.Log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Submit prices every item and admits the submission only if the team's balance
// plus credit limit covers the total. Nothing is charged until completion.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) ([]*models.WorkOrder, error) {
	if req.TeamID == uuid.Nil || req.RequesterID == uuid.Nil {
		return nil, models.Invalid("team and requester are required")
	}
	if len(req.Items) == 0 || len(req.Items) > MaxItemsPerSubmit {
		return nil, models.Invalid("submit between 1 and %d items", MaxItemsPerSubmit)
	}
	team, err := s.teams.GetByID(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	orders := make([]*models.WorkOrder, 0, len(req.Items))
	var total int64
	for i, raw := range req.Items {
		item, err := s.validator.OrderItem(raw)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		quote, err := s.pricer.Resolve(ctx, team.ID, item.WorkType, item.AITier)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		total += quote.PriceCents
		orders = append(orders, &models.WorkOrder{
			ID:               uuid.New(),
			TeamID:           team.ID,
			RequesterID:      req.RequesterID,
			Status:           models.OrderStatusRequested,
			WorkType:         item.WorkType,
			AITier:           item.AITier,
			Brief:            item.Brief,
			Attachments:      item.Attachments,
			QuotedPriceCents: quote.PriceCents,
			CreatedAt:        now,
		})
	}
	if team.Available() < total {
		return nil, fmt.Errorf("%w: need %s, available %s", models.ErrInsufficientCredit,
			models.FormatCents(total), models.FormatCents(team.Available()))
	}

	err = db.WithTx(ctx, s.txs, func(tx pgx.Tx) error {
		for _, o := range orders {
			if err := s.store.CreateTx(ctx, tx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("work orders submitted", "team_id", team.ID, "count", len(orders), "total_cents", total)
	evs := make([]events.Event, 0, len(orders))
	for _, o := range orders {
		evs = append(evs, events.ForOrder(events.TypeOrderSubmitted, o, &req.RequesterID))
	}
	events.Publish(ctx, s.bus, s.log, evs...)
	return orders, nil
}

// Claim assigns a requested order to workerID. Of concurrent claims on one order
// exactly one succeeds; the others get models.ErrStateConflict.
func (s *Service) Claim(ctx context.Context, orderID, workerID uuid.UUID) (*models.WorkOrder, error) {
	o, err := s.claim(ctx, orderID, workerID)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, notify.Notification{
		Kind:       notify.KindOrderClaimed,
		Recipients: notify.Recipients(o.RequesterID),
		Subject:    "Your work order is in progress",
		Items:      []notify.Item{{ID: o.ID, Status: o.Status}},
	})
	return o, nil
}

func (s *Service) claim(ctx context.Context, orderID, workerID uuid.UUID) (*models.WorkOrder, error) {
	if workerID == uuid.Nil {
		return nil, models.Invalid("worker is required")
	}
	o, err := s.store.Claim(ctx, orderID, workerID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.log.Info("work order claimed", "order_id", o.ID, "assignee_id", workerID)
	events.Publish(ctx, s.bus, s.log, events.ForOrder(events.TypeOrderClaimed, o, &workerID))
	return o, nil
}

// Complete validates the artifact, then marks the order completed and debits the
// team in one transaction. If the debit fails the order stays claimed.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*models.WorkOrder, error) {
	o, entry, err := s.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, notify.Notification{
		Kind:       notify.KindOrderCompleted,
		Recipients: notify.Recipients(o.RequesterID),
		Subject:    "Your website is ready",
		Body:       fmt.Sprintf("Charged %s, team balance %s.", models.FormatCents(-entry.AmountCents), models.FormatCents(entry.BalanceAfterCents)),
		Items:      []notify.Item{{ID: o.ID, Status: o.Status, Note: req.Note}},
	})
	return o, nil
}

func (s *Service) complete(ctx context.Context, req CompleteRequest) (*models.WorkOrder, *models.LedgerEntry, error) {
	ref := strings.TrimSpace(req.ArtifactRef)
	if ref == "" {
		return nil, nil, models.Invalid("artifact_ref is required")
	}
	current, err := s.store.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if current.Status != models.OrderStatusClaimed {
		return nil, nil, fmt.Errorf("work order %s is %s: %w", current.ID, current.Status, models.ErrInvalidState)
	}
	price := current.QuotedPriceCents
	if req.FinalPriceCents != nil {
		price = *req.FinalPriceCents
	}
	if price < 0 {
		return nil, nil, models.Invalid("final price must not be negative")
	}
	manifest, err := s.inspectArtifact(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	var done *models.WorkOrder
	var entry *models.LedgerEntry
	actor := req.ActorID
	err = ledger.RetryOnConflict(ctx, ledger.DefaultAttempts, func() error {
		return db.WithTx(ctx, s.txs, func(tx pgx.Tx) error {
			var err error
			done, err = s.store.CompleteTx(ctx, tx, req.OrderID, models.Completion{
				FinalPriceCents: price,
				ArtifactRef:     ref,
				Note:            req.Note,
				At:              s.now().UTC(),
			})
			if err != nil {
				return err
			}
			orderID := done.ID
			entry, err = s.ledger.ApplyEntry(ctx, tx, ledger.Entry{
				TeamID:      done.TeamID,
				Kind:        models.LedgerKindOrderCharge,
				AmountCents: -price,
				Note:        "work order " + orderID.String(),
				ActorID:     &actor,
				WorkOrderID: &orderID,
			})
			return err
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("work order completed", "order_id", done.ID, "team_id", done.TeamID,
		"final_price_cents", price, "artifact_files", manifest.Files, "balance_after_cents", entry.BalanceAfterCents)
	events.Publish(ctx, s.bus, s.log,
		events.ForOrder(events.TypeOrderCompleted, done, &actor),
		events.ForBalance(entry),
	)
	return done, entry, nil
}

func (s *Service) inspectArtifact(ctx context.Context, ref string) (*artifact.Manifest, error) {
	data, err := s.blobs.Get(ctx, ref)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: artifact %q does not exist", models.ErrArtifactFormat, ref)
	}
	if err != nil {
		return nil, err
	}
	return artifact.Inspect(data)
}

// Cancel withdraws a requested order. Claimed orders cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, reason string, actorID uuid.UUID) (*models.WorkOrder, error) {
	o, err := s.cancel(ctx, orderID, reason, actorID)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, notify.Notification{
		Kind:       notify.KindOrderCancelled,
		Recipients: notify.Recipients(o.RequesterID),
		Subject:    "Your work order was cancelled",
		Items:      []notify.Item{{ID: o.ID, Status: o.Status, Note: reason}},
	})
	return o, nil
}

func (s *Service) cancel(ctx context.Context, orderID uuid.UUID, reason string, actorID uuid.UUID) (*models.WorkOrder, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.Invalid("cancel reason is required")
	}
	o, err := s.store.Cancel(ctx, orderID, reason, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.log.Info("work order cancelled", "order_id", o.ID, "reason", reason)
	events.Publish(ctx, s.bus, s.log, events.ForOrder(events.TypeOrderCancelled, o, &actorID))
	return o, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.WorkOrder, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f models.OrderFilter) ([]*models.WorkOrder, error) {
	return s.store.List(ctx, f)
}

func (s *Service) dispatch(ctx context.Context, ns ...notify.Notification) {
	if s.notifier == nil {
		return
	}
	now := s.now().UTC()
	for i := range ns {
		ns[i].CreatedAt = now
	}
	s.notifier.Dispatch(ctx, ns...)
}

// StoreArtifact saves an archive for an existing order and returns its blob key.
func (s *Service) StoreArtifact(ctx context.Context, orderID uuid.UUID, data []byte) (string, error) {
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.Terminal() {
		return "", fmt.Errorf("work order %s is %s: %w", o.ID, o.Status, models.ErrInvalidState)
	}
	key := fmt.Sprintf("artifacts/%s/%s.zip", o.TeamID, uuid.New())
	if err := s.blobs.Put(ctx, key, data); err != nil {
		return "", err
	}
	s.log.Info("artifact stored", "order_id", o.ID, "key", key, "bytes", len(data))
	return key, nil
}
