package transfers

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisfm/aegisfm/internal/platform/db"
	"github.com/aegisfm/aegisfm/internal/stock"
)

// Repository persists transfers and their lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations for transfer creation
// and completion.
type TxRepository interface {
	Create(ctx context.Context, tr Transfer) (Transfer, error)
	CreateLine(ctx context.Context, line Line) (Line, error)
	GetForUpdate(ctx context.Context, companyID, id int64) (Transfer, error)
	Lines(ctx context.Context, transferID int64) ([]Line, error)
	SetLineActualCost(ctx context.Context, lineID int64, cost float64) error
	MarkCompleted(ctx context.Context, companyID, id, actorID int64) error
	Stock() stock.Tx
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfers repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const transferColumns = `id, company_id, number, source_warehouse_id, COALESCE(dest_warehouse_id,0), COALESCE(dest_device_id,0), status, COALESCE(notes,''), COALESCE(created_by,0), COALESCE(completed_by,0), COALESCE(completed_at,'0001-01-01'), created_at, updated_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var tr Transfer
	err := row.Scan(&tr.ID, &tr.CompanyID, &tr.Number, &tr.SourceID, &tr.DestWarehouse, &tr.DestDevice,
		&tr.Status, &tr.Notes, &tr.CreatedBy, &tr.CompletedBy, &tr.CompletedAt, &tr.CreatedAt, &tr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrNotFound
	}
	return tr, err
}

const lineColumns = `id, transfer_id, item_id, quantity, unit_cost, COALESCE(actual_cost,0)`

func scanLine(row pgx.Row) (Line, error) {
	var line Line
	err := row.Scan(&line.ID, &line.TransferID, &line.ItemID, &line.Quantity, &line.UnitCost, &line.ActualCost)
	return line, err
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func (r *txRepository) Create(ctx context.Context, tr Transfer) (Transfer, error) {
	return scanTransfer(r.tx.QueryRow(ctx, `INSERT INTO stock_transfers (company_id, number, source_warehouse_id, dest_warehouse_id, dest_device_id, status, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING `+transferColumns,
		tr.CompanyID, tr.Number, tr.SourceID, nullInt(tr.DestWarehouse), nullInt(tr.DestDevice),
		tr.Status, tr.Notes, nullInt(tr.CreatedBy)))
}

func (r *txRepository) CreateLine(ctx context.Context, line Line) (Line, error) {
	return scanLine(r.tx.QueryRow(ctx, `INSERT INTO stock_transfer_lines (transfer_id, item_id, quantity, unit_cost)
VALUES ($1,$2,$3,$4) RETURNING `+lineColumns,
		line.TransferID, line.ItemID, line.Quantity, line.UnitCost))
}

func (r *txRepository) GetForUpdate(ctx context.Context, companyID, id int64) (Transfer, error) {
	return scanTransfer(r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id))
}

func (r *txRepository) Lines(ctx context.Context, transferID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, transferID)
}

func (r *txRepository) SetLineActualCost(ctx context.Context, lineID int64, cost float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_transfer_lines SET actual_cost=$2 WHERE id=$1`, lineID, cost)
	return err
}

func (r *txRepository) MarkCompleted(ctx context.Context, companyID, id, actorID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_transfers SET status=$3, completed_by=$4, completed_at=NOW(), updated_at=NOW()
WHERE company_id=$1 AND id=$2`, companyID, id, StatusCompleted, actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stock returns a stock engine port bound to the same transaction.
func (r *txRepository) Stock() stock.Tx {
	return stock.NewTx(r.tx)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, transferID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM stock_transfer_lines WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *Repository) Get(ctx context.Context, companyID, id int64) (Transfer, error) {
	tr, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		return Transfer{}, err
	}
	tr.Lines, err = queryLines(ctx, r.pool, tr.ID)
	return tr, err
}

// List returns a page of transfers plus the unpaged total. Lines are not
// loaded for listings.
func (r *Repository) List(ctx context.Context, companyID int64, filter ListFilter) ([]Transfer, int, error) {
	where := "WHERE company_id=$1"
	args := []any{companyID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += " AND status=$" + strconv.Itoa(len(args))
	}
	if filter.WarehouseID != 0 {
		args = append(args, filter.WarehouseID)
		n := strconv.Itoa(len(args))
		where += " AND (source_warehouse_id=$" + n + " OR dest_warehouse_id=$" + n + ")"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transfers `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM stock_transfers `+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	transfers := []Transfer{}
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, tr)
	}
	return transfers, total, rows.Err()
}
