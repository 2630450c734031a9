package workorders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisfm/aegisfm/internal/platform/db"
	"github.com/aegisfm/aegisfm/internal/stock"
)

// Repository persists work orders and their checklists.
type Repository struct {
	pool   *pgxpool.Pool
	ledger *stock.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, ledger: stock.NewRepository(pool)}
}

// EntriesForWorkOrder lists the committed ledger rows referencing the work
// order.
func (r *Repository) EntriesForWorkOrder(ctx context.Context, companyID, workOrderID int64) ([]stock.LedgerEntry, error) {
	return r.ledger.EntriesForWorkOrder(ctx, companyID, workOrderID)
}

// TxRepository exposes the transactional operations for the part claim
// protocol. Stock returns the movement port bound to the same transaction so
// status flips and ledger writes land together.
type TxRepository interface {
	Create(ctx context.Context, wo WorkOrder) (WorkOrder, error)
	GetForUpdate(ctx context.Context, companyID, id int64) (WorkOrder, error)
	NextNumber(ctx context.Context, companyID int64) (string, error)
	AddChecklistItem(ctx context.Context, item ChecklistItem) (ChecklistItem, error)
	Checklist(ctx context.Context, companyID, workOrderID int64) ([]ChecklistItem, error)
	CompleteChecklistItem(ctx context.Context, companyID, workOrderID, itemID, actorID int64) error
	MarkCompleted(ctx context.Context, companyID, id int64) error
	MarkApproved(ctx context.Context, companyID, id, actorID int64) error
	MarkCancelled(ctx context.Context, companyID, id, actorID int64, note string) error
	Delete(ctx context.Context, companyID, id int64) error
	Stock() stock.Tx
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("workorders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const workOrderColumns = `id, company_id, number, title, COALESCE(description,''), COALESCE(device_id,0), COALESCE(branch_id,0), status, COALESCE(assigned_to,0), COALESCE(due_date,'0001-01-01'), COALESCE(approved_by,0), COALESCE(approved_at,'0001-01-01'), COALESCE(cancelled_by,0), COALESCE(cancelled_at,'0001-01-01'), COALESCE(cancel_note,''), COALESCE(created_by,0), created_at, updated_at`

func scanWorkOrder(row pgx.Row) (WorkOrder, error) {
	var wo WorkOrder
	err := row.Scan(&wo.ID, &wo.CompanyID, &wo.Number, &wo.Title, &wo.Description, &wo.DeviceID,
		&wo.BranchID, &wo.Status, &wo.AssignedTo, &wo.DueDate, &wo.ApprovedBy, &wo.ApprovedAt,
		&wo.CancelledBy, &wo.CancelledAt, &wo.CancelNote, &wo.CreatedBy, &wo.CreatedAt, &wo.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkOrder{}, ErrNotFound
	}
	return wo, err
}

const checklistColumns = `id, work_order_id, position, description, completed, COALESCE(completed_by,0), COALESCE(completed_at,'0001-01-01')`

func scanChecklistItem(row pgx.Row) (ChecklistItem, error) {
	var it ChecklistItem
	err := row.Scan(&it.ID, &it.WorkOrderID, &it.Position, &it.Description, &it.Completed,
		&it.CompletedBy, &it.CompletedAt)
	return it, err
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (r *txRepository) Create(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	return scanWorkOrder(r.tx.QueryRow(ctx, `INSERT INTO work_orders (company_id, number, title, description, device_id, branch_id, status, assigned_to, due_date, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW()) RETURNING `+workOrderColumns,
		wo.CompanyID, wo.Number, wo.Title, wo.Description, nullInt(wo.DeviceID), nullInt(wo.BranchID),
		wo.Status, nullInt(wo.AssignedTo), nullTime(wo.DueDate), nullInt(wo.CreatedBy)))
}

func (r *txRepository) GetForUpdate(ctx context.Context, companyID, id int64) (WorkOrder, error) {
	return scanWorkOrder(r.tx.QueryRow(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id))
}

// NextNumber allocates the next work order number for the company and
// current year.
func (r *txRepository) NextNumber(ctx context.Context, companyID int64) (string, error) {
	year := time.Now().UTC().Format("2006")
	var value int64
	err := r.tx.QueryRow(ctx, `INSERT INTO work_order_sequences (company_id, year, last_value)
VALUES ($1,$2,1)
ON CONFLICT (company_id, year) DO UPDATE SET last_value = work_order_sequences.last_value + 1
RETURNING last_value`, companyID, year).Scan(&value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("WO-%s-%05d", year, value), nil
}

func (r *txRepository) AddChecklistItem(ctx context.Context, item ChecklistItem) (ChecklistItem, error) {
	return scanChecklistItem(r.tx.QueryRow(ctx, `INSERT INTO work_order_checklist (work_order_id, position, description, completed)
VALUES ($1,$2,$3,FALSE) RETURNING `+checklistColumns,
		item.WorkOrderID, item.Position, item.Description))
}

func (r *txRepository) Checklist(ctx context.Context, companyID, workOrderID int64) ([]ChecklistItem, error) {
	return queryChecklist(ctx, r.tx, companyID, workOrderID)
}

func (r *txRepository) CompleteChecklistItem(ctx context.Context, companyID, workOrderID, itemID, actorID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE work_order_checklist c SET completed=TRUE, completed_by=$4, completed_at=NOW()
FROM work_orders w
WHERE c.id=$3 AND c.work_order_id=$2 AND w.id=c.work_order_id AND w.company_id=$1`,
		companyID, workOrderID, itemID, actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkCompleted(ctx context.Context, companyID, id int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE work_orders SET status=$3, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, companyID, id, StatusCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkApproved(ctx context.Context, companyID, id, actorID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE work_orders SET status=$3, approved_by=$4, approved_at=NOW(), updated_at=NOW()
WHERE company_id=$1 AND id=$2`, companyID, id, StatusApproved, actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkCancelled(ctx context.Context, companyID, id, actorID int64, note string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE work_orders SET status=$3, cancelled_by=$4, cancelled_at=NOW(), cancel_note=$5, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, companyID, id, StatusCancelled, actorID, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) Delete(ctx context.Context, companyID, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM work_order_checklist WHERE work_order_id=$2
AND EXISTS (SELECT 1 FROM work_orders WHERE company_id=$1 AND id=$2)`, companyID, id); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM work_orders WHERE company_id=$1 AND id=$2`, companyID, id)
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

func queryChecklist(ctx context.Context, q queryer, companyID, workOrderID int64) ([]ChecklistItem, error) {
	rows, err := q.Query(ctx, `SELECT c.id, c.work_order_id, c.position, c.description, c.completed, COALESCE(c.completed_by,0), COALESCE(c.completed_at,'0001-01-01')
FROM work_order_checklist c
JOIN work_orders w ON w.id = c.work_order_id
WHERE w.company_id=$1 AND c.work_order_id=$2
ORDER BY c.position, c.id`, companyID, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ChecklistItem{}
	for rows.Next() {
		it, err := scanChecklistItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) Get(ctx context.Context, companyID, id int64) (WorkOrder, error) {
	return scanWorkOrder(r.pool.QueryRow(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE company_id=$1 AND id=$2`, companyID, id))
}

func (r *Repository) Checklist(ctx context.Context, companyID, workOrderID int64) ([]ChecklistItem, error) {
	return queryChecklist(ctx, r.pool, companyID, workOrderID)
}

// List returns a page of work orders plus the unpaged total.
func (r *Repository) List(ctx context.Context, companyID int64, filter ListFilter) ([]WorkOrder, int, error) {
	where := "WHERE company_id=$1"
	args := []any{companyID}
	add := func(clause string, value any) {
		args = append(args, value)
		where += " AND " + clause + "$" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		add("status=", filter.Status)
	}
	if filter.DeviceID != 0 {
		add("device_id=", filter.DeviceID)
	}
	if filter.BranchID != 0 {
		add("branch_id=", filter.BranchID)
	}
	if filter.AssignedTo != 0 {
		add("assigned_to=", filter.AssignedTo)
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += " AND (number ILIKE $" + n + " OR title ILIKE $" + n + ")"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM work_orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+workOrderColumns+` FROM work_orders `+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders := []WorkOrder{}
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, wo)
	}
	return orders, total, rows.Err()
}
