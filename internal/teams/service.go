// Package teams administers teams: creation, credit limits, manual balance
// adjustments, and tariffs.
package teams

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webforge/backend/internal/db"
	"github.com/webforge/backend/internal/events"
	"github.com/webforge/backend/internal/ledger"
	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/pricing"
)

type Store interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Team) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error)
	List(ctx context.Context) ([]*models.Team, error)
	SetCreditLimit(ctx context.Context, id uuid.UUID, cents int64) (*models.Team, error)
}

type CreateRequest struct {
	Name                string     `json:"name"`
	CreditLimitCents    int64      `json:"credit_limit_cents"`
	OpeningBalanceCents int64      `json:"opening_balance_cents"`
	ActorID             *uuid.UUID `json:"-"`
}

type Service struct {
	store   Store
	ledger  ledger.Service
	pricing *pricing.Resolver
	txs     db.TxBeginner
	bus     events.Bus
	log     *slog.Logger
}

func NewService(store Store, ledgerSvc ledger.Service, resolver *pricing.Resolver, txs db.TxBeginner, bus events.Bus, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, ledger: ledgerSvc, pricing: resolver, txs: txs, bus: bus, log: log}
}

// Create adds a team. A non-zero opening balance is booked as an adjustment so
// the balance always equals the sum of the team's entries.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, models.Invalid("name is required")
	}
	if req.CreditLimitCents < 0 {
		return nil, models.Invalid("credit limit must not be negative")
	}
	team := &models.Team{ID: uuid.New(), Name: name, CreditLimitCents: req.CreditLimitCents}
	var entry *models.LedgerEntry
	err := db.WithTx(ctx, s.txs, func(tx pgx.Tx) error {
		if err := s.store.CreateTx(ctx, tx, team); err != nil {
			return err
		}
		if req.OpeningBalanceCents == 0 {
			return nil
		}
		var err error
		entry, err = s.ledger.ApplyEntry(ctx, tx, ledger.Entry{
			TeamID:      team.ID,
			Kind:        models.LedgerKindAdjustment,
			AmountCents: req.OpeningBalanceCents,
			Note:        "opening balance",
			ActorID:     req.ActorID,
		})
		if err != nil {
			return err
		}
		team.BalanceCents = entry.BalanceAfterCents
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("team created", "team_id", team.ID, "balance_cents", team.BalanceCents)
	if entry != nil {
		events.Publish(ctx, s.bus, s.log, events.ForBalance(entry))
	}
	return team, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*models.Team, error) {
	return s.store.List(ctx)
}

func (s *Service) SetCreditLimit(ctx context.Context, id uuid.UUID, cents int64) (*models.Team, error) {
	if cents < 0 {
		return nil, models.Invalid("credit limit must not be negative")
	}
	t, err := s.store.SetCreditLimit(ctx, id, cents)
	if err != nil {
		return nil, err
	}
	s.log.Info("credit limit changed", "team_id", id, "credit_limit_cents", cents)
	return t, nil
}

// Adjust books a manual top-up or correction through the ledger.
func (s *Service) Adjust(ctx context.Context, teamID uuid.UUID, amount int64, note string, actorID *uuid.UUID) (*models.LedgerEntry, error) {
	if amount == 0 {
		return nil, models.Invalid("adjustment amount must not be zero")
	}
	if strings.TrimSpace(note) == "" {
		return nil, models.Invalid("adjustment needs a note")
	}
	entry, err := s.ledger.Apply(ctx, ledger.Entry{
		TeamID:      teamID,
		Kind:        models.LedgerKindAdjustment,
		AmountCents: amount,
		Note:        note,
		ActorID:     actorID,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("balance adjusted", "team_id", teamID, "amount", models.FormatCents(amount), "balance_after_cents", entry.BalanceAfterCents)
	events.Publish(ctx, s.bus, s.log, events.ForBalance(entry))
	return entry, nil
}

func (s *Service) Statement(ctx context.Context, teamID uuid.UUID) ([]*models.LedgerEntry, error) {
	if _, err := s.store.GetByID(ctx, teamID); err != nil {
		return nil, err
	}
	return s.ledger.Statement(ctx, teamID)
}

func (s *Service) Reconcile(ctx context.Context, teamID uuid.UUID) (*ledger.Reconciliation, error) {
	return s.ledger.Reconcile(ctx, teamID)
}

func (s *Service) Tariff(ctx context.Context, teamID uuid.UUID) (*models.PricingTariff, error) {
	if _, err := s.store.GetByID(ctx, teamID); err != nil {
		return nil, err
	}
	return s.pricing.Tariff(ctx, teamID)
}

func (s *Service) SetTariff(ctx context.Context, t *models.PricingTariff) error {
	if _, err := s.store.GetByID(ctx, t.TeamID); err != nil {
		return err
	}
	return s.pricing.SetTariff(ctx, t)
}
