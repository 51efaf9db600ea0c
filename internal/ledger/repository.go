package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webforge/backend/internal/db"
	"github.com/webforge/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) BalanceTx(ctx context.Context, tx pgx.Tx, teamID uuid.UUID) (int64, error) {
	var balance int64
	err := db.Q(r.pool, tx).QueryRow(ctx, `SELECT balance_cents FROM teams WHERE id = $1`, teamID).Scan(&balance)
	if db.IsNoRows(err) {
		return 0, fmt.Errorf("team %s: %w", teamID, models.ErrNotFound)
	}
	return balance, err
}

// CompareAndSetBalanceTx writes next only if the stored balance still equals
// expected. Under READ COMMITTED a concurrent committed writer makes the WHERE
// fail on re-check, so a lost update is reported instead of applied.
func (r *Repository) CompareAndSetBalanceTx(ctx context.Context, tx pgx.Tx, teamID uuid.UUID, expected, next int64) (bool, error) {
	tag, err := db.Q(r.pool, tx).Exec(ctx, `
		UPDATE teams SET balance_cents = $3, updated_at = now()
		WHERE id = $1 AND balance_cents = $2
	`, teamID, expected, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) InsertEntryTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	_, err := db.Q(r.pool, tx).Exec(ctx, `
		INSERT INTO ledger_entries (id, team_id, kind, amount_cents, balance_before_cents, balance_after_cents, note, actor_id, work_order_id, appeal_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.TeamID, e.Kind, e.AmountCents, e.BalanceBeforeCents, e.BalanceAfterCents, e.Note, e.ActorID, e.WorkOrderID, e.AppealID, e.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s entry already recorded", models.ErrStateConflict, e.Kind)
	}
	return err
}

// ListEntries returns the team's entries, newest first.
func (r *Repository) ListEntries(ctx context.Context, teamID uuid.UUID) ([]*models.LedgerEntry, error) {
	return listEntries(ctx, r.pool, teamID)
}

// SnapshotTx reads the balance and the entries as of one point. FOR SHARE waits
// out any transaction still moving the balance, so both reads agree.
func (r *Repository) SnapshotTx(ctx context.Context, tx pgx.Tx, teamID uuid.UUID) (int64, []*models.LedgerEntry, error) {
	q := db.Q(r.pool, tx)
	var balance int64
	err := q.QueryRow(ctx, `SELECT balance_cents FROM teams WHERE id = $1 FOR SHARE`, teamID).Scan(&balance)
	if db.IsNoRows(err) {
		return 0, nil, fmt.Errorf("team %s: %w", teamID, models.ErrNotFound)
	}
	if err != nil {
		return 0, nil, err
	}
	entries, err := listEntries(ctx, q, teamID)
	return balance, entries, err
}

func listEntries(ctx context.Context, q db.Querier, teamID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, team_id, kind, amount_cents, balance_before_cents, balance_after_cents, note, actor_id, work_order_id, appeal_id, created_at
		FROM ledger_entries WHERE team_id = $1 ORDER BY seq DESC
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TeamID, &e.Kind, &e.AmountCents, &e.BalanceBeforeCents, &e.BalanceAfterCents, &e.Note, &e.ActorID, &e.WorkOrderID, &e.AppealID, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
