package items

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

// Repository persists items and categories.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used when item creation
// seeds an opening balance.
type TxRepository interface {
	CreateItem(ctx context.Context, item Item) (Item, error)
	DeleteItem(ctx context.Context, companyID, id int64) error
	Stock() stock.Tx
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("items repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

const itemColumns = `id, company_id, COALESCE(category_id,0), item_number, COALESCE(description,''), unit, unit_cost, unit_price, minimum_stock, is_active, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CompanyID, &it.CategoryID, &it.ItemNumber, &it.Description, &it.Unit,
		&it.UnitCost, &it.UnitPrice, &it.MinimumStock, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (r *txRepository) CreateItem(ctx context.Context, item Item) (Item, error) {
	created, err := scanItem(r.tx.QueryRow(ctx, `INSERT INTO items (company_id, category_id, item_number, description, unit, unit_cost, unit_price, minimum_stock, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE,NOW(),NOW()) RETURNING `+itemColumns,
		item.CompanyID, nullInt(item.CategoryID), item.ItemNumber, item.Description, item.Unit,
		item.UnitCost, item.UnitPrice, item.MinimumStock))
	if err != nil {
		if isUniqueViolation(err, "uq_items_company_number") {
			return Item{}, ErrDuplicateNumber
		}
		return Item{}, err
	}
	return created, nil
}

func (r *txRepository) DeleteItem(ctx context.Context, companyID, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM items WHERE company_id=$1 AND id=$2`, companyID, id)
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

// GetItem loads one item.
func (r *Repository) GetItem(ctx context.Context, companyID, id int64) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

// ListItems returns filtered items plus the total count.
func (r *Repository) ListItems(ctx context.Context, companyID int64, filter ListFilter) ([]Item, int, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE company_id = $1`
	countQuery := `SELECT COUNT(*) FROM items WHERE company_id = $1`
	args := []interface{}{companyID}

	if filter.CategoryID != 0 {
		args = append(args, filter.CategoryID)
		cond := ` AND category_id = $` + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		cond := ` AND (item_number ILIKE $` + strconv.Itoa(len(args)) + ` OR description ILIKE $` + strconv.Itoa(len(args)) + `)`
		query += cond
		countQuery += cond
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		cond := ` AND is_active = $` + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += ` ORDER BY item_number ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, item)
	}
	return result, total, rows.Err()
}

// UpdateItem persists editable item fields.
func (r *Repository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET category_id=$3, description=$4, unit=$5, unit_cost=$6, unit_price=$7, minimum_stock=$8, is_active=$9, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, item.CompanyID, item.ID, nullInt(item.CategoryID), item.Description, item.Unit, item.UnitCost, item.UnitPrice, item.MinimumStock, item.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StockSummary reports the item's aggregate stock and ledger footprint.
func (r *Repository) StockSummary(ctx context.Context, companyID, id int64) (onHand, reserved float64, ledgerRows int, err error) {
	err = r.pool.QueryRow(ctx, `SELECT
COALESCE((SELECT SUM(quantity_on_hand) FROM stock_locations WHERE company_id=$1 AND item_id=$2),0),
COALESCE((SELECT SUM(quantity_reserved) FROM stock_locations WHERE company_id=$1 AND item_id=$2),0),
COALESCE((SELECT COUNT(*) FROM stock_ledger WHERE company_id=$1 AND item_id=$2),0)`, companyID, id).
		Scan(&onHand, &reserved, &ledgerRows)
	return onHand, reserved, ledgerRows, err
}

const categoryColumns = `id, company_id, name, COALESCE(description,''), is_active, created_at, updated_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ListCategories returns every category of the company.
func (r *Repository) ListCategories(ctx context.Context, companyID int64) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM item_categories WHERE company_id=$1 ORDER BY name ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, category Category) (Category, error) {
	return scanCategory(r.pool.QueryRow(ctx, `INSERT INTO item_categories (company_id, name, description, is_active, created_at, updated_at)
VALUES ($1,$2,$3,TRUE,NOW(),NOW()) RETURNING `+categoryColumns, category.CompanyID, category.Name, category.Description))
}

// UpdateCategory persists category fields.
func (r *Repository) UpdateCategory(ctx context.Context, category Category) error {
	tag, err := r.pool.Exec(ctx, `UPDATE item_categories SET name=$3, description=$4, is_active=$5, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, category.CompanyID, category.ID, category.Name, category.Description, category.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
