package vendors

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Vendor, int, error)
	Get(ctx context.Context, companyID, id int64) (Vendor, error)
	Create(ctx context.Context, vendor Vendor) (Vendor, error)
	Update(ctx context.Context, vendor Vendor) error
	Deactivate(ctx context.Context, companyID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const columns = `id, company_id, code, name, COALESCE(contact_person,''), COALESCE(phone,''), COALESCE(email,''), COALESCE(address,''), payment_term_days, is_active, created_at, updated_at`

func scan(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.CompanyID, &v.Code, &v.Name, &v.ContactPerson, &v.Phone, &v.Email, &v.Address, &v.PaymentTermDays, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

var sortColumns = map[string]string{"code": "code", "name": "name", "created_at": "created_at"}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Vendor, int, error) {
	query := `SELECT ` + columns + ` FROM vendors WHERE company_id = $1`
	countQuery := `SELECT COUNT(*) FROM vendors WHERE company_id = $1`
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

	query += ` ORDER BY ` + shared.SortOrder(filters.SortBy, filters.SortDir, sortColumns, "name")
	args = append(args, filters.Limit, filters.Offset())
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Vendor{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, v)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Vendor, error) {
	v, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM vendors WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, shared.ErrNotFound
	}
	return v, err
}

func (r *repository) Create(ctx context.Context, vendor Vendor) (Vendor, error) {
	return scan(r.pool.QueryRow(ctx, `INSERT INTO vendors (company_id, code, name, contact_person, phone, email, address, payment_term_days, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE,NOW(),NOW()) RETURNING `+columns,
		vendor.CompanyID, vendor.Code, vendor.Name, vendor.ContactPerson, vendor.Phone, vendor.Email, vendor.Address, vendor.PaymentTermDays))
}

func (r *repository) Update(ctx context.Context, vendor Vendor) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vendors SET code=$3, name=$4, contact_person=$5, phone=$6, email=$7, address=$8, payment_term_days=$9, is_active=$10, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, vendor.CompanyID, vendor.ID, vendor.Code, vendor.Name, vendor.ContactPerson, vendor.Phone, vendor.Email, vendor.Address, vendor.PaymentTermDays, vendor.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vendors SET is_active=FALSE, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
