package appeal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

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

const appealColumns = `id, work_order_id, team_id, requester_id, status, refund_amount_cents, reason, evidence,
	resolution_comment, resolved_by, resolved_at, created_at`

func scanAppeal(row pgx.Row) (*models.Appeal, error) {
	var a models.Appeal
	var evidence []byte
	err := row.Scan(&a.ID, &a.WorkOrderID, &a.TeamID, &a.RequesterID, &a.Status, &a.RefundAmountCents, &a.Reason, &evidence,
		&a.ResolutionComment, &a.ResolvedBy, &a.ResolvedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return &a, nil
}

// CreateTx inserts a pending appeal. The partial unique index on pending appeals
// turns a second concurrent filing into models.ErrStateConflict.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, a *models.Appeal) error {
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return err
	}
	_, err = db.Q(r.pool, tx).Exec(ctx, `
		INSERT INTO appeals (id, work_order_id, team_id, requester_id, status, refund_amount_cents, reason, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.WorkOrderID, a.TeamID, a.RequesterID, a.Status, a.RefundAmountCents, a.Reason, evidence, a.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: work order %s already has a pending appeal", models.ErrStateConflict, a.WorkOrderID)
	}
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Appeal, error) {
	a, err := scanAppeal(r.pool.QueryRow(ctx, `SELECT `+appealColumns+` FROM appeals WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("appeal %s: %w", id, models.ErrNotFound)
	}
	return a, err
}

func (r *Repository) List(ctx context.Context, f models.AppealFilter) ([]*models.Appeal, error) {
	var where []string
	var args []any
	if f.TeamID != nil {
		args = append(args, *f.TeamID)
		where = append(where, fmt.Sprintf("team_id = $%d", len(args)))
	}
	if f.WorkOrderID != nil {
		args = append(args, *f.WorkOrderID)
		where = append(where, fmt.Sprintf("work_order_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + appealColumns + ` FROM appeals`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *Repository) HasPendingTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Q(r.pool, tx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appeals WHERE work_order_id = $1 AND status = 'pending')
	`, orderID).Scan(&exists)
	return exists, err
}

func (r *Repository) ApprovedRefundTotalTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int64, error) {
	var total int64
	err := db.Q(r.pool, tx).QueryRow(ctx, `
		SELECT COALESCE(SUM(refund_amount_cents), 0)::bigint FROM appeals WHERE work_order_id = $1 AND status = 'approved'
	`, orderID).Scan(&total)
	return total, err
}

// ResolveTx moves a pending appeal to its decision in one conditional UPDATE.
func (r *Repository) ResolveTx(ctx context.Context, tx pgx.Tx, res models.Resolution) (*models.Appeal, error) {
	q := db.Q(r.pool, tx)
	a, err := scanAppeal(q.QueryRow(ctx, `
		UPDATE appeals SET status = $2, resolution_comment = $3, resolved_by = $4, resolved_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+appealColumns, res.AppealID, res.Status, res.Comment, res.ResolverID, res.At))
	if !db.IsNoRows(err) {
		return a, err
	}
	var status string
	err = q.QueryRow(ctx, `SELECT status FROM appeals WHERE id = $1`, res.AppealID).Scan(&status)
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("appeal %s: %w", res.AppealID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("appeal %s is %s: %w", res.AppealID, status, models.ErrAlreadyResolved)
}
