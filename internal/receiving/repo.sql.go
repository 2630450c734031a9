package receiving

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisfm/aegisfm/internal/platform/db"
	"github.com/aegisfm/aegisfm/internal/stock"
)

// Repository persists invoices and their lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations for invoice receipt.
type TxRepository interface {
	Create(ctx context.Context, inv Invoice) (Invoice, error)
	CreateLine(ctx context.Context, line Line) (Line, error)
	GetForUpdate(ctx context.Context, companyID, id int64) (Invoice, error)
	Lines(ctx context.Context, invoiceID int64) ([]Line, error)
	AddReceivedQty(ctx context.Context, lineID int64, qty float64) error
	SetStatus(ctx context.Context, companyID, id int64, status ReceiveStatus) error
	Stock() stock.Tx
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("receiving repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

const invoiceColumns = `id, company_id, number, COALESCE(vendor_id,0), invoice_date, receive_status, COALESCE(notes,''), COALESCE(created_by,0), created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.Number, &inv.VendorID, &inv.InvoiceDate,
		&inv.Status, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return inv, err
}

const lineColumns = `id, invoice_id, item_id, quantity, unit_cost, received_qty`

func scanLine(row pgx.Row) (Line, error) {
	var line Line
	err := row.Scan(&line.ID, &line.InvoiceID, &line.ItemID, &line.Quantity, &line.UnitCost, &line.ReceivedQty)
	return line, err
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func (r *txRepository) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	created, err := scanInvoice(r.tx.QueryRow(ctx, `INSERT INTO purchase_invoices (company_id, number, vendor_id, invoice_date, receive_status, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING `+invoiceColumns,
		inv.CompanyID, inv.Number, nullInt(inv.VendorID), inv.InvoiceDate, inv.Status, inv.Notes, nullInt(inv.CreatedBy)))
	if err != nil {
		if isUniqueViolation(err, "uq_purchase_invoices_company_number") {
			return Invoice{}, ErrDuplicateNumber
		}
		return Invoice{}, err
	}
	return created, nil
}

func (r *txRepository) CreateLine(ctx context.Context, line Line) (Line, error) {
	return scanLine(r.tx.QueryRow(ctx, `INSERT INTO purchase_invoice_lines (invoice_id, item_id, quantity, unit_cost, received_qty)
VALUES ($1,$2,$3,$4,0) RETURNING `+lineColumns,
		line.InvoiceID, line.ItemID, line.Quantity, line.UnitCost))
}

func (r *txRepository) GetForUpdate(ctx context.Context, companyID, id int64) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id))
}

func (r *txRepository) Lines(ctx context.Context, invoiceID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, invoiceID)
}

func (r *txRepository) AddReceivedQty(ctx context.Context, lineID int64, qty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_invoice_lines SET received_qty = received_qty + $2 WHERE id=$1`, lineID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *txRepository) SetStatus(ctx context.Context, companyID, id int64, status ReceiveStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_invoices SET receive_status=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id, status)
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

func queryLines(ctx context.Context, q queryer, invoiceID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM purchase_invoice_lines WHERE invoice_id=$1 ORDER BY id`, invoiceID)
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

func (r *Repository) Get(ctx context.Context, companyID, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		return Invoice{}, err
	}
	inv.Lines, err = queryLines(ctx, r.pool, inv.ID)
	return inv, err
}

// List returns a page of invoices plus the unpaged total. Lines are not
// loaded for listings.
func (r *Repository) List(ctx context.Context, companyID int64, filter ListFilter) ([]Invoice, int, error) {
	where := "WHERE company_id=$1"
	args := []any{companyID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += " AND receive_status=$" + strconv.Itoa(len(args))
	}
	if filter.VendorID != 0 {
		args = append(args, filter.VendorID)
		where += " AND vendor_id=$" + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_invoices `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices `+where+
		` ORDER BY invoice_date DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	invoices := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}
