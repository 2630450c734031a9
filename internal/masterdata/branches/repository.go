package branches

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error)
	Get(ctx context.Context, companyID, id int64) (Branch, error)
	Create(ctx context.Context, branch Branch) (Branch, error)
	Update(ctx context.Context, branch Branch) error
	Deactivate(ctx context.Context, companyID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const columns = `id, company_id, code, name, COALESCE(address,''), COALESCE(phone,''), is_active, created_at, updated_at`

func scan(row pgx.Row) (Branch, error) {
	var b Branch
	err := row.Scan(&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

var sortColumns = map[string]string{"code": "code", "name": "name", "created_at": "created_at"}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	query := `SELECT ` + columns + ` FROM branches WHERE company_id = $1`
	countQuery := `SELECT COUNT(*) FROM branches WHERE company_id = $1`
	args := []interface{}{filters.CompanyID}

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
	result := []Branch{}
	for rows.Next() {
		b, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, b)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Branch, error) {
	b, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM branches WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Branch{}, shared.ErrNotFound
	}
	return b, err
}

func (r *repository) Create(ctx context.Context, branch Branch) (Branch, error) {
	return scan(r.pool.QueryRow(ctx, `INSERT INTO branches (company_id, code, name, address, phone, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,TRUE,NOW(),NOW()) RETURNING `+columns,
		branch.CompanyID, branch.Code, branch.Name, branch.Address, branch.Phone))
}

func (r *repository) Update(ctx context.Context, branch Branch) error {
	tag, err := r.pool.Exec(ctx, `UPDATE branches SET code=$3, name=$4, address=$5, phone=$6, is_active=$7, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, branch.CompanyID, branch.ID, branch.Code, branch.Name, branch.Address, branch.Phone, branch.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE branches SET is_active=FALSE, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
