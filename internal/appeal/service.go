// Package appeal handles disputes over completed work orders and the refunds
// they may grant.
package appeal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/webforge/backend/internal/db"
	"github.com/webforge/backend/internal/events"
	"github.com/webforge/backend/internal/intake"
	"github.com/webforge/backend/internal/ledger"
	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/notify"
)

// Store persists appeals. ResolveTx is conditional on the appeal being pending and
// returns models.ErrAlreadyResolved otherwise.
type Store interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.Appeal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Appeal, error)
	List(ctx context.Context, f models.AppealFilter) ([]*models.Appeal, error)
	HasPendingTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error)
	ApprovedRefundTotalTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int64, error)
	ResolveTx(ctx context.Context, tx pgx.Tx, res models.Resolution) (*models.Appeal, error)
}

// OrderReader is the slice of work order storage appeals need.
type OrderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkOrder, error)
	// GetForUpdateTx returns committed state and holds the row until tx ends.
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.WorkOrder, error)
}

type FileRequest struct {
	WorkOrderID uuid.UUID
	RequesterID uuid.UUID
	Reason      string
	RefundCents int64
	Evidence    json.RawMessage
}

type ResolveRequest struct {
	AppealID   uuid.UUID
	Decision   string
	Comment    string
	ResolverID uuid.UUID
}

type Service struct {
	store     Store
	orders    OrderReader
	ledger    ledger.Service
	validator *intake.Validator
	txs       db.TxBeginner
	notifier  notify.Dispatcher
	bus       events.Bus
	log       *slog.Logger
	bulkLimit int
	now       func() time.Time
}

type Deps struct {
	Store     Store
	Orders    OrderReader
	Ledger    ledger.Service
	Validator *intake.Validator
	Txs       db.TxBeginner
	Notifier  notify.Dispatcher
	Bus       events.Bus
	Log       *slog.Logger
}

func NewService(d Deps, bulkConcurrency int) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Validator == nil {
		d.Validator = intake.MustValidator()
	}
	if bulkConcurrency <= 0 {
		bulkConcurrency = 4
	}
	return &Service{
		store:     d.Store,
		orders:    d.Orders,
		ledger:    d.Ledger,
		validator: d.Validator,
		txs:       d.Txs,
		notifier:  d.Notifier,
		bus:       d.Bus,
		log:       d.Log,
		bulkLimit: bulkConcurrency,
		now:       time.Now,
	}
}

// File opens a pending appeal against a completed order. An order has at most
// one pending appeal, and approved refunds never add up to more than it cost.
func (s *Service) File(ctx context.Context, req FileRequest) (*models.Appeal, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, models.Invalid("reason is required")
	}
	if req.RefundCents < 0 {
		return nil, models.Invalid("refund must not be negative")
	}
	evidence, err := s.validator.Evidence(req.Evidence)
	if err != nil {
		return nil, err
	}
	a := &models.Appeal{
		ID:                uuid.New(),
		WorkOrderID:       req.WorkOrderID,
		RequesterID:       req.RequesterID,
		Status:            models.AppealStatusPending,
		RefundAmountCents: req.RefundCents,
		Reason:            reason,
		Evidence:          evidence,
		CreatedAt:         s.now().UTC(),
	}
	// The order is read inside the transaction so a completion that is still
	// open, and may yet roll back its charge, is never appealed against.
	err = ledger.RetryOnConflict(ctx, ledger.DefaultAttempts, func() error {
		return db.WithTx(ctx, s.txs, func(tx pgx.Tx) error {
			order, err := s.orders.GetForUpdateTx(ctx, tx, req.WorkOrderID)
			if err != nil {
				return err
			}
			if order.Status != models.OrderStatusCompleted {
				return fmt.Errorf("work order %s is %s: %w", order.ID, order.Status, models.ErrInvalidState)
			}
			a.TeamID = order.TeamID
			pending, err := s.store.HasPendingTx(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if pending {
				return fmt.Errorf("%w: work order %s already has a pending appeal", models.ErrStateConflict, order.ID)
			}
			refunded, err := s.store.ApprovedRefundTotalTx(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if left := order.ChargedCents() - refunded; req.RefundCents > left {
				return models.Invalid("refund %s exceeds refundable %s", models.FormatCents(req.RefundCents), models.FormatCents(left))
			}
			return s.store.CreateTx(ctx, tx, a)
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("appeal filed", "appeal_id", a.ID, "order_id", a.WorkOrderID, "refund_cents", a.RefundAmountCents)
	events.Publish(ctx, s.bus, s.log, events.ForAppeal(events.TypeAppealFiled, a, &req.RequesterID))
	return a, nil
}

// Resolve decides a pending appeal. An approved refund is credited in the same
// transaction as the status change; if the credit fails the appeal stays pending.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (*models.Appeal, error) {
	a, entry, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	n := notify.Notification{
		Kind:       notify.KindAppealResolved,
		Recipients: notify.Recipients(a.RequesterID),
		Subject:    "Your appeal was " + a.Status,
		Items:      []notify.Item{{ID: a.ID, Status: a.Status, Note: req.Comment}},
	}
	if entry != nil {
		n.Body = fmt.Sprintf("Refunded %s, team balance %s.", models.FormatCents(entry.AmountCents), models.FormatCents(entry.BalanceAfterCents))
	}
	s.dispatch(ctx, n)
	return a, nil
}

func (s *Service) resolve(ctx context.Context, req ResolveRequest) (*models.Appeal, *models.LedgerEntry, error) {
	if !models.ValidDecision(req.Decision) {
		return nil, nil, models.Invalid("decision must be %s or %s", models.AppealStatusApproved, models.AppealStatusRejected)
	}
	if req.ResolverID == uuid.Nil {
		return nil, nil, models.Invalid("resolver is required")
	}
	var a *models.Appeal
	var entry *models.LedgerEntry
	resolver := req.ResolverID
	err := ledger.RetryOnConflict(ctx, ledger.DefaultAttempts, func() error {
		entry = nil
		return db.WithTx(ctx, s.txs, func(tx pgx.Tx) error {
			var err error
			a, err = s.store.ResolveTx(ctx, tx, models.Resolution{
				AppealID:   req.AppealID,
				Status:     req.Decision,
				Comment:    req.Comment,
				ResolverID: resolver,
				At:         s.now().UTC(),
			})
			if err != nil {
				return err
			}
			if a.Status != models.AppealStatusApproved || a.RefundAmountCents == 0 {
				return nil
			}
			appealID, orderID := a.ID, a.WorkOrderID
			entry, err = s.ledger.ApplyEntry(ctx, tx, ledger.Entry{
				TeamID:      a.TeamID,
				Kind:        models.LedgerKindAppealRefund,
				AmountCents: a.RefundAmountCents,
				Note:        "appeal " + appealID.String(),
				ActorID:     &resolver,
				WorkOrderID: &orderID,
				AppealID:    &appealID,
			})
			return err
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("appeal resolved", "appeal_id", a.ID, "status", a.Status, "refund_cents", a.RefundAmountCents)
	evs := []events.Event{events.ForAppeal(events.TypeAppealResolved, a, &resolver)}
	if entry != nil {
		evs = append(evs, events.ForBalance(entry))
	}
	events.Publish(ctx, s.bus, s.log, evs...)
	return a, entry, nil
}

// BulkResolve applies one decision to many appeals independently with bounded
// concurrency and sends one notification covering the successes.
func (s *Service) BulkResolve(ctx context.Context, ids []uuid.UUID, decision, comment string, resolverID uuid.UUID) (*models.BulkResult, error) {
	if !models.ValidDecision(decision) {
		return nil, models.Invalid("decision must be %s or %s", models.AppealStatusApproved, models.AppealStatusRejected)
	}
	if len(ids) == 0 || len(ids) > models.MaxBulkItems {
		return nil, models.Invalid("bulk request needs between 1 and %d ids", models.MaxBulkItems)
	}

	done := make([]*models.Appeal, len(ids))
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(s.bulkLimit)
	for i, id := range ids {
		g.Go(func() error {
			done[i], _, errs[i] = s.resolve(ctx, ResolveRequest{AppealID: id, Decision: decision, Comment: comment, ResolverID: resolverID})
			return nil
		})
	}
	_ = g.Wait()

	res := &models.BulkResult{Succeeded: []uuid.UUID{}, Failed: []models.BulkFailure{}}
	var items []notify.Item
	var requesters []uuid.UUID
	for i, id := range ids {
		if errs[i] != nil {
			s.log.Warn("bulk resolve item failed", "appeal_id", id, "error", errs[i])
			res.Failed = append(res.Failed, models.BulkFailure{ID: id, Error: errs[i].Error()})
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
		items = append(items, notify.Item{ID: id, Status: done[i].Status, Note: comment})
		requesters = append(requesters, done[i].RequesterID)
	}
	s.log.Info("bulk resolve finished", "decision", decision, "succeeded", len(res.Succeeded), "failed", len(res.Failed))
	if len(items) > 0 {
		s.dispatch(ctx, notify.Notification{
			Kind:       notify.KindBulkAppeals,
			Recipients: notify.Recipients(requesters...),
			Subject:    fmt.Sprintf("%d appeals %s", len(items), decision),
			Items:      items,
		})
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Appeal, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f models.AppealFilter) ([]*models.Appeal, error) {
	return s.store.List(ctx, f)
}

func (s *Service) dispatch(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	n.CreatedAt = s.now().UTC()
	s.notifier.Dispatch(ctx, n)
}
