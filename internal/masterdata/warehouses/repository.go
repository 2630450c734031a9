package warehouses

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, companyID, id int64) (Warehouse, error)
	GetMain(ctx context.Context, companyID int64) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	Update(ctx context.Context, warehouse Warehouse) error
	SetMain(ctx context.Context, companyID, id int64) error
	Deactivate(ctx context.Context, companyID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const columns = `id, company_id, COALESCE(branch_id,0), code, name, COALESCE(address,''), is_main, is_active, created_at, updated_at`

func scan(row pgx.Row) (Warehouse, error) {
	var w Warehouse
	err := row.Scan(&w.ID, &w.CompanyID, &w.BranchID, &w.Code, &w.Name, &w.Address, &w.IsMain, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

var sortColumns = map[string]string{"code": "code", "name": "name", "created_at": "created_at"}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	query := `SELECT ` + columns + ` FROM warehouses WHERE company_id = $1`
	countQuery := `SELECT COUNT(*) FROM warehouses WHERE company_id = $1`
	args := []interface{}{filters.CompanyID}

	if filters.BranchID != nil {
		args = append(args, *filters.BranchID)
		cond := ` AND branch_id = $` + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		cond := ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
		query += cond
		countQuery += cond
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		cond := ` AND is_active = $` + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY ` + shared.SortOrder(filters.SortBy, filters.SortDir, sortColumns, "code")
	args = append(args, filters.Limit, filters.Offset())
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Warehouse{}
	for rows.Next() {
		w, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, w)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	w, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM warehouses WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, shared.ErrNotFound
	}
	return w, err
}

// GetMain returns the company's designated main warehouse.
func (r *repository) GetMain(ctx context.Context, companyID int64) (Warehouse, error) {
	w, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM warehouses WHERE company_id=$1 AND is_main AND is_active`, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, shared.ErrNotFound
	}
	return w, err
}

func (r *repository) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Warehouse{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if warehouse.IsMain {
		if _, err := tx.Exec(ctx, `UPDATE warehouses SET is_main=FALSE, updated_at=NOW() WHERE company_id=$1 AND is_main`, warehouse.CompanyID); err != nil {
			return Warehouse{}, err
		}
	}
	created, err := scan(tx.QueryRow(ctx, `INSERT INTO warehouses (company_id, branch_id, code, name, address, is_main, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,TRUE,NOW(),NOW()) RETURNING `+columns,
		warehouse.CompanyID, nullInt(warehouse.BranchID), warehouse.Code, warehouse.Name, warehouse.Address, warehouse.IsMain))
	if err != nil {
		return Warehouse{}, err
	}
	return created, tx.Commit(ctx)
}

func (r *repository) Update(ctx context.Context, warehouse Warehouse) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses SET branch_id=$3, code=$4, name=$5, address=$6, is_active=$7, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, warehouse.CompanyID, warehouse.ID, nullInt(warehouse.BranchID), warehouse.Code, warehouse.Name, warehouse.Address, warehouse.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetMain flips the main flag to the given warehouse, clearing it elsewhere.
func (r *repository) SetMain(ctx context.Context, companyID, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE warehouses SET is_main=FALSE, updated_at=NOW() WHERE company_id=$1 AND is_main`, companyID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE warehouses SET is_main=TRUE, updated_at=NOW() WHERE company_id=$1 AND id=$2 AND is_active`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *repository) Deactivate(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses SET is_active=FALSE, is_main=FALSE, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
