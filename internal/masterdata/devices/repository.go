package devices

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Device, int, error)
	Get(ctx context.Context, companyID, id int64) (Device, error)
	GetByCode(ctx context.Context, companyID int64, code string) (Device, error)
	Create(ctx context.Context, device Device, accessKeyHash string) (Device, error)
	Update(ctx context.Context, device Device) error
	UpdateAccessKey(ctx context.Context, companyID, id int64, accessKeyHash string) error
	Deactivate(ctx context.Context, companyID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const columns = `id, company_id, code, name, COALESCE(warehouse_id,0), COALESCE(technician_name,''), COALESCE(access_key_hash,''), is_active, created_at, updated_at`

func scan(row pgx.Row) (Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.CompanyID, &d.Code, &d.Name, &d.WarehouseID, &d.TechnicianName, &d.accessKeyHash, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

var sortColumns = map[string]string{"code": "code", "name": "name", "created_at": "created_at"}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Device, int, error) {
	query := `SELECT ` + columns + ` FROM devices WHERE company_id = $1`
	countQuery := `SELECT COUNT(*) FROM devices WHERE company_id = $1`
	args := []interface{}{filters.CompanyID}

	if filters.WarehouseID != nil {
		args = append(args, *filters.WarehouseID)
		cond := ` AND warehouse_id = $` + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		cond := ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + ` OR technician_name ILIKE $` + strconv.Itoa(len(args)) + `)`
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
	result := []Device{}
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, d)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Device, error) {
	d, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM devices WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, shared.ErrNotFound
	}
	return d, err
}

func (r *repository) GetByCode(ctx context.Context, companyID int64, code string) (Device, error) {
	d, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM devices WHERE company_id=$1 AND code=$2`, companyID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, shared.ErrNotFound
	}
	return d, err
}

func (r *repository) Create(ctx context.Context, device Device, accessKeyHash string) (Device, error) {
	return scan(r.pool.QueryRow(ctx, `INSERT INTO devices (company_id, code, name, warehouse_id, technician_name, access_key_hash, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,TRUE,NOW(),NOW()) RETURNING `+columns,
		device.CompanyID, device.Code, device.Name, nullInt(device.WarehouseID), device.TechnicianName, accessKeyHash))
}

func (r *repository) Update(ctx context.Context, device Device) error {
	tag, err := r.pool.Exec(ctx, `UPDATE devices SET code=$3, name=$4, warehouse_id=$5, technician_name=$6, is_active=$7, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, device.CompanyID, device.ID, device.Code, device.Name, nullInt(device.WarehouseID), device.TechnicianName, device.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) UpdateAccessKey(ctx context.Context, companyID, id int64, accessKeyHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE devices SET access_key_hash=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id, accessKeyHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE devices SET is_active=FALSE, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id)
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
