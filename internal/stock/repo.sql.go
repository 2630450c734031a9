package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisfm/aegisfm/internal/platform/db"
)

// Repository persists stock locations and the movement ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTx wraps an existing pgx transaction so other modules can post
// movements inside their own transaction.
func NewTx(tx pgx.Tx) Tx {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const locationColumns = `id, company_id, item_id, COALESCE(warehouse_id,0), COALESCE(device_id,0), quantity_on_hand, quantity_reserved, average_cost, last_cost, updated_at`

func scanLocation(row pgx.Row) (Location, error) {
	var loc Location
	err := row.Scan(&loc.ID, &loc.CompanyID, &loc.ItemID, &loc.WarehouseID, &loc.DeviceID,
		&loc.OnHand, &loc.Reserved, &loc.AverageCost, &loc.LastCost, &loc.UpdatedAt)
	return loc, err
}

func (r *txRepository) LocationForUpdate(ctx context.Context, companyID, itemID int64, ref LocationRef) (Location, error) {
	loc, err := scanLocation(r.tx.QueryRow(ctx, `SELECT `+locationColumns+`
FROM stock_locations
WHERE company_id=$1 AND item_id=$2 AND warehouse_id IS NOT DISTINCT FROM $3 AND device_id IS NOT DISTINCT FROM $4
FOR UPDATE`, companyID, itemID, nullInt(ref.WarehouseID), nullInt(ref.DeviceID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrNoStockRecord
		}
		return Location{}, err
	}
	return loc, nil
}

func (r *txRepository) CreateLocation(ctx context.Context, companyID, itemID int64, ref LocationRef) (Location, error) {
	return scanLocation(r.tx.QueryRow(ctx, `INSERT INTO stock_locations (company_id, item_id, warehouse_id, device_id, quantity_on_hand, quantity_reserved, average_cost, last_cost, updated_at)
VALUES ($1,$2,$3,$4,0,0,0,0,NOW())
RETURNING `+locationColumns, companyID, itemID, nullInt(ref.WarehouseID), nullInt(ref.DeviceID)))
}

func (r *txRepository) UpdateLocation(ctx context.Context, loc Location) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_locations
SET quantity_on_hand=$2, quantity_reserved=$3, average_cost=$4, last_cost=$5, updated_at=NOW()
WHERE id=$1`, loc.ID, loc.OnHand, loc.Reserved, loc.AverageCost, loc.LastCost)
	return err
}

const ledgerColumns = `id, company_id, transaction_number, transaction_type, item_id, quantity, unit, unit_cost, total_cost, balance_after,
COALESCE(from_warehouse_id,0), COALESCE(from_device_id,0), COALESCE(to_warehouse_id,0), COALESCE(to_device_id,0),
COALESCE(invoice_id,0), COALESCE(work_order_id,0), COALESCE(transfer_id,0), COALESCE(notes,''), COALESCE(created_by,0), created_at`

func scanEntry(row pgx.Row) (LedgerEntry, error) {
	var e LedgerEntry
	err := row.Scan(&e.ID, &e.CompanyID, &e.TransactionNumber, &e.Type, &e.ItemID, &e.Quantity, &e.Unit,
		&e.UnitCost, &e.TotalCost, &e.BalanceAfter,
		&e.FromWarehouseID, &e.FromDeviceID, &e.ToWarehouseID, &e.ToDeviceID,
		&e.InvoiceID, &e.WorkOrderID, &e.TransferID, &e.Notes, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

func (r *txRepository) InsertEntry(ctx context.Context, entry LedgerEntry) (LedgerEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `INSERT INTO stock_ledger
(company_id, transaction_number, transaction_type, item_id, quantity, unit, unit_cost, total_cost, balance_after,
 from_warehouse_id, from_device_id, to_warehouse_id, to_device_id, invoice_id, work_order_id, transfer_id, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,NOW())
RETURNING `+ledgerColumns,
		entry.CompanyID, entry.TransactionNumber, string(entry.Type), entry.ItemID, entry.Quantity, entry.Unit,
		entry.UnitCost, entry.TotalCost, entry.BalanceAfter,
		nullInt(entry.FromWarehouseID), nullInt(entry.FromDeviceID), nullInt(entry.ToWarehouseID), nullInt(entry.ToDeviceID),
		nullInt(entry.InvoiceID), nullInt(entry.WorkOrderID), nullInt(entry.TransferID), entry.Notes, nullInt(entry.CreatedBy)))
}

func (r *txRepository) NextTransactionNumber(ctx context.Context, companyID int64, prefix string) (string, error) {
	period := time.Now().UTC().Format("200601")
	var value int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_sequences (company_id, prefix, period, last_value)
VALUES ($1,$2,$3,1)
ON CONFLICT (company_id, prefix, period) DO UPDATE SET last_value = stock_sequences.last_value + 1
RETURNING last_value`, companyID, prefix, period).Scan(&value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, period, value), nil
}

func (r *txRepository) DeviceWarehouse(ctx context.Context, companyID, deviceID int64) (int64, error) {
	return deviceWarehouse(ctx, r.tx, companyID, deviceID)
}

func (r *txRepository) ItemInfo(ctx context.Context, companyID, itemID int64) (ItemInfo, error) {
	var info ItemInfo
	err := r.tx.QueryRow(ctx, `SELECT id, item_number, COALESCE(description,''), unit, unit_cost, minimum_stock, is_active
FROM items WHERE company_id=$1 AND id=$2`, companyID, itemID).
		Scan(&info.ID, &info.ItemNumber, &info.Description, &info.Unit, &info.UnitCost, &info.MinimumStock, &info.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return ItemInfo{}, fmt.Errorf("stock: item %d: %w", itemID, pgx.ErrNoRows)
	}
	return info, err
}

func (r *txRepository) EntriesForWorkOrder(ctx context.Context, companyID, workOrderID int64) ([]LedgerEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+ledgerColumns+`
FROM stock_ledger WHERE company_id=$1 AND work_order_id=$2 ORDER BY id ASC`, companyID, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetLocation loads a balance row without locking it.
func (r *Repository) GetLocation(ctx context.Context, companyID, itemID int64, ref LocationRef) (Location, error) {
	loc, err := scanLocation(r.pool.QueryRow(ctx, `SELECT `+locationColumns+`
FROM stock_locations
WHERE company_id=$1 AND item_id=$2 AND warehouse_id IS NOT DISTINCT FROM $3 AND device_id IS NOT DISTINCT FROM $4`,
		companyID, itemID, nullInt(ref.WarehouseID), nullInt(ref.DeviceID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrNoStockRecord
		}
		return Location{}, err
	}
	return loc, nil
}

// ItemLocations lists every balance row for one item across locations.
func (r *Repository) ItemLocations(ctx context.Context, companyID, itemID int64) ([]Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+locationColumns+`
FROM stock_locations WHERE company_id=$1 AND item_id=$2 ORDER BY id ASC`, companyID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	locs := []Location{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// DeviceWarehouse resolves a device's linked warehouse outside a transaction.
func (r *Repository) DeviceWarehouse(ctx context.Context, companyID, deviceID int64) (int64, error) {
	return deviceWarehouse(ctx, r.pool, companyID, deviceID)
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func deviceWarehouse(ctx context.Context, q queryer, companyID, deviceID int64) (int64, error) {
	var warehouseID int64
	err := q.QueryRow(ctx, `SELECT COALESCE(warehouse_id,0) FROM devices WHERE company_id=$1 AND id=$2`, companyID, deviceID).Scan(&warehouseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("stock: device %d: %w", deviceID, pgx.ErrNoRows)
	}
	return warehouseID, err
}

// ListLedger returns a filtered, paginated slice of ledger rows plus the
// total row count for the filter.
func (r *Repository) ListLedger(ctx context.Context, companyID int64, filter LedgerFilter) ([]LedgerEntry, int, error) {
	where := []string{"company_id=$1"}
	args := []any{companyID}
	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ItemID != 0 {
		add("item_id=$%d", filter.ItemID)
	}
	if filter.WarehouseID != 0 {
		add("(from_warehouse_id=$%[1]d OR to_warehouse_id=$%[1]d)", filter.WarehouseID)
	}
	if filter.DeviceID != 0 {
		add("(from_device_id=$%[1]d OR to_device_id=$%[1]d)", filter.DeviceID)
	}
	if filter.WorkOrderID != 0 {
		add("work_order_id=$%d", filter.WorkOrderID)
	}
	if filter.Type != "" {
		add("transaction_type=$%d", string(filter.Type))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_ledger WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM stock_ledger WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		ledgerColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// EntriesForWorkOrder lists every ledger row referencing a work order,
// oldest first, without pagination. Used for part claim replay views.
func (r *Repository) EntriesForWorkOrder(ctx context.Context, companyID, workOrderID int64) ([]LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ledgerColumns+`
FROM stock_ledger WHERE company_id=$1 AND work_order_id=$2 ORDER BY id ASC`, companyID, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// StockByLocation lists the aggregated stock view rows at one location.
func (r *Repository) StockByLocation(ctx context.Context, companyID int64, ref LocationRef) ([]View, error) {
	rows, err := r.pool.Query(ctx, `SELECT sl.item_id, i.item_number, COALESCE(i.description,''), i.unit,
COALESCE(sl.warehouse_id,0), COALESCE(sl.device_id,0),
sl.quantity_on_hand, sl.quantity_reserved, sl.quantity_on_hand - sl.quantity_reserved, sl.average_cost
FROM stock_locations sl
JOIN items i ON i.id = sl.item_id
WHERE sl.company_id=$1 AND sl.warehouse_id IS NOT DISTINCT FROM $2 AND sl.device_id IS NOT DISTINCT FROM $3
ORDER BY i.item_number ASC`, companyID, nullInt(ref.WarehouseID), nullInt(ref.DeviceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	views := []View{}
	for rows.Next() {
		var v View
		if err := rows.Scan(&v.ItemID, &v.ItemNumber, &v.Description, &v.Unit, &v.WarehouseID, &v.DeviceID,
			&v.OnHand, &v.Reserved, &v.Available, &v.AverageCost); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// LowStock lists items whose total on-hand across locations fell below the
// item's minimum stock level.
func (r *Repository) LowStock(ctx context.Context, companyID int64) ([]View, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.item_number, COALESCE(i.description,''), i.unit,
0, 0, COALESCE(SUM(sl.quantity_on_hand),0), COALESCE(SUM(sl.quantity_reserved),0),
COALESCE(SUM(sl.quantity_on_hand - sl.quantity_reserved),0), i.unit_cost
FROM items i
LEFT JOIN stock_locations sl ON sl.item_id = i.id
WHERE i.company_id=$1 AND i.is_active AND i.minimum_stock > 0
GROUP BY i.id, i.item_number, i.description, i.unit, i.unit_cost, i.minimum_stock
HAVING COALESCE(SUM(sl.quantity_on_hand),0) < i.minimum_stock
ORDER BY i.item_number ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	views := []View{}
	for rows.Next() {
		var v View
		if err := rows.Scan(&v.ItemID, &v.ItemNumber, &v.Description, &v.Unit, &v.WarehouseID, &v.DeviceID,
			&v.OnHand, &v.Reserved, &v.Available, &v.AverageCost); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// LedgerTotals sums signed ledger quantities per stock location for
// integrity checks. Outflows count against the from location, inflows
// against the to location.
func (r *Repository) LedgerTotals(ctx context.Context, companyID int64) (map[LocationKey]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id,
CASE WHEN quantity < 0 THEN COALESCE(from_warehouse_id,0) ELSE COALESCE(to_warehouse_id,0) END,
CASE WHEN quantity < 0 THEN COALESCE(from_device_id,0) ELSE COALESCE(to_device_id,0) END,
COALESCE(SUM(quantity),0)
FROM stock_ledger WHERE company_id=$1 GROUP BY 1, 2, 3`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := map[LocationKey]float64{}
	for rows.Next() {
		var key LocationKey
		var sum float64
		if err := rows.Scan(&key.ItemID, &key.WarehouseID, &key.DeviceID, &sum); err != nil {
			return nil, err
		}
		totals[key] += sum
	}
	return totals, rows.Err()
}

// LocationTotals reads on-hand minus reserved per stock location.
func (r *Repository) LocationTotals(ctx context.Context, companyID int64) (map[LocationKey]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id, COALESCE(warehouse_id,0), COALESCE(device_id,0), quantity_on_hand - quantity_reserved
FROM stock_locations WHERE company_id=$1`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := map[LocationKey]float64{}
	for rows.Next() {
		var key LocationKey
		var qty float64
		if err := rows.Scan(&key.ItemID, &key.WarehouseID, &key.DeviceID, &qty); err != nil {
			return nil, err
		}
		totals[key] += qty
	}
	return totals, rows.Err()
}

// Companies lists distinct company ids present in stock data, used by
// background scans.
func (r *Repository) Companies(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company_id FROM stock_locations ORDER BY company_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
