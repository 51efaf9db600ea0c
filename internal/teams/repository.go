package teams

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

const teamColumns = `id, name, balance_cents, credit_limit_cents, created_at, updated_at`

func scanTeam(row pgx.Row) (*models.Team, error) {
	var t models.Team
	if err := row.Scan(&t.ID, &t.Name, &t.BalanceCents, &t.CreditLimitCents, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Team) error {
	err := db.Q(r.pool, tx).QueryRow(ctx, `
		INSERT INTO teams (id, name, balance_cents, credit_limit_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, t.ID, t.Name, t.BalanceCents, t.CreditLimitCents).Scan(&t.CreatedAt, &t.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: team %s exists", models.ErrStateConflict, t.ID)
	}
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	t, err := scanTeam(r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("team %s: %w", id, models.ErrNotFound)
	}
	return t, err
}

func (r *Repository) List(ctx context.Context) ([]*models.Team, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *Repository) SetCreditLimit(ctx context.Context, id uuid.UUID, cents int64) (*models.Team, error) {
	t, err := scanTeam(r.pool.QueryRow(ctx, `
		UPDATE teams SET credit_limit_cents = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+teamColumns, id, cents))
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("team %s: %w", id, models.ErrNotFound)
	}
	return t, err
}
