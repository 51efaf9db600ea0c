package workorder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

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

const orderColumns = `id, team_id, requester_id, assignee_id, status, work_type, ai_tier, brief, attachments,
	quoted_price_cents, final_price_cents, artifact_ref, completion_note, cancel_reason,
	created_at, claimed_at, completed_at`

func scanOrder(row pgx.Row) (*models.WorkOrder, error) {
	var o models.WorkOrder
	var attachments []byte
	err := row.Scan(&o.ID, &o.TeamID, &o.RequesterID, &o.AssigneeID, &o.Status, &o.WorkType, &o.AITier, &o.Brief, &attachments,
		&o.QuotedPriceCents, &o.FinalPriceCents, &o.ArtifactRef, &o.CompletionNote, &o.CancelReason,
		&o.CreatedAt, &o.ClaimedAt, &o.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attachments, &o.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return &o, nil
}

func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, o *models.WorkOrder) error {
	attachments, err := json.Marshal(o.Attachments)
	if err != nil {
		return err
	}
	_, err = db.Q(r.pool, tx).Exec(ctx, `
		INSERT INTO work_orders (id, team_id, requester_id, status, work_type, ai_tier, brief, attachments, quoted_price_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, o.ID, o.TeamID, o.RequesterID, o.Status, o.WorkType, o.AITier, o.Brief, attachments, o.QuotedPriceCents, o.CreatedAt)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM work_orders WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("work order %s: %w", id, models.ErrNotFound)
	}
	return o, err
}

// GetForUpdateTx reads the order and locks its row until tx ends. A transaction
// still changing the order is waited out, so the result is committed state.
func (r *Repository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.WorkOrder, error) {
	o, err := scanOrder(db.Q(r.pool, tx).QueryRow(ctx, `SELECT `+orderColumns+` FROM work_orders WHERE id = $1 FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("work order %s: %w", id, models.ErrNotFound)
	}
	return o, err
}

func (r *Repository) List(ctx context.Context, f models.OrderFilter) ([]*models.WorkOrder, error) {
	var where []string
	var args []any
	if f.TeamID != nil {
		args = append(args, *f.TeamID)
		where = append(where, fmt.Sprintf("team_id = $%d", len(args)))
	}
	if f.AssigneeID != nil {
		args = append(args, *f.AssigneeID)
		where = append(where, fmt.Sprintf("assignee_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + orderColumns + ` FROM work_orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WorkOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// Claim moves a requested order to claimed in one conditional UPDATE, so of two
// racing workers exactly one matches the row.
func (r *Repository) Claim(ctx context.Context, id, workerID uuid.UUID, at time.Time) (*models.WorkOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
		UPDATE work_orders SET status = 'claimed', assignee_id = $2, claimed_at = $3
		WHERE id = $1 AND status = 'requested'
		RETURNING `+orderColumns, id, workerID, at))
	if db.IsNoRows(err) {
		return nil, r.missedTransition(ctx, r.pool, id)
	}
	return o, err
}

func (r *Repository) CompleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, c models.Completion) (*models.WorkOrder, error) {
	q := db.Q(r.pool, tx)
	o, err := scanOrder(q.QueryRow(ctx, `
		UPDATE work_orders SET status = 'completed', final_price_cents = $2, artifact_ref = $3, completion_note = $4, completed_at = $5
		WHERE id = $1 AND status = 'claimed'
		RETURNING `+orderColumns, id, c.FinalPriceCents, c.ArtifactRef, c.Note, c.At))
	if db.IsNoRows(err) {
		return nil, r.missedTransition(ctx, q, id)
	}
	return o, err
}

func (r *Repository) Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.WorkOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
		UPDATE work_orders SET status = 'cancelled', cancel_reason = $2, completed_at = $3
		WHERE id = $1 AND status = 'requested'
		RETURNING `+orderColumns, id, reason, at))
	if db.IsNoRows(err) {
		return nil, r.missedTransition(ctx, r.pool, id)
	}
	return o, err
}

// missedTransition explains why a conditional UPDATE matched no row.
func (r *Repository) missedTransition(ctx context.Context, q db.Querier, id uuid.UUID) error {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM work_orders WHERE id = $1`, id).Scan(&status)
	if db.IsNoRows(err) {
		return fmt.Errorf("work order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("work order %s is %s: %w", id, status, models.ErrInvalidState)
}
