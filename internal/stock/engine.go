package stock

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Tx is the transactional port the engine posts through. Implementations bind
// every call to one database transaction so a multi-movement operation either
// lands completely or not at all.
type Tx interface {
	// LocationForUpdate loads and row-locks the balance row for the item at
	// the referenced location. Returns ErrNoStockRecord when none exists.
	LocationForUpdate(ctx context.Context, companyID, itemID int64, ref LocationRef) (Location, error)
	// CreateLocation inserts a zero balance row and returns it locked.
	CreateLocation(ctx context.Context, companyID, itemID int64, ref LocationRef) (Location, error)
	// UpdateLocation persists the mutated balance counters.
	UpdateLocation(ctx context.Context, loc Location) error
	// InsertEntry appends one immutable ledger row.
	InsertEntry(ctx context.Context, entry LedgerEntry) (LedgerEntry, error)
	// NextTransactionNumber allocates the next sequence value for the
	// company, prefix and current month.
	NextTransactionNumber(ctx context.Context, companyID int64, prefix string) (string, error)
	// DeviceWarehouse resolves the warehouse a device is linked to, zero when
	// the device is unlinked.
	DeviceWarehouse(ctx context.Context, companyID, deviceID int64) (int64, error)
	// ItemInfo loads item attributes needed for posting.
	ItemInfo(ctx context.Context, companyID, itemID int64) (ItemInfo, error)
	// EntriesForWorkOrder lists all ledger rows referencing a work order,
	// oldest first.
	EntriesForWorkOrder(ctx context.Context, companyID, workOrderID int64) ([]LedgerEntry, error)
}

const qtyEpsilon = 1e-9

// Apply posts one movement inside the caller's transaction: it locks the
// affected balance row, mutates the counters per the movement type, and
// appends the ledger entry. The returned entry carries the allocated
// transaction number and resulting balance.
func Apply(ctx context.Context, tx Tx, mv Movement) (LedgerEntry, error) {
	if !mv.Type.Valid() {
		return LedgerEntry{}, fmt.Errorf("%w: %q", ErrUnknownType, mv.Type)
	}
	if mv.Quantity <= qtyEpsilon {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	item, err := tx.ItemInfo(ctx, mv.CompanyID, mv.ItemID)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("stock: load item %d: %w", mv.ItemID, err)
	}

	target, err := resolveTarget(ctx, tx, mv)
	if err != nil {
		return LedgerEntry{}, err
	}

	var entryQty, entryCost, balanceAfter float64
	switch {
	case mv.Type.Increasing():
		inCost := mv.UnitCost
		if inCost <= 0 {
			inCost = OutboundCost(0, target.AverageCost, item.UnitCost)
		}
		target.AverageCost = WeightedAverage(target.OnHand, target.AverageCost, mv.Quantity, inCost)
		target.LastCost = inCost
		target.OnHand += mv.Quantity
		entryQty = mv.Quantity
		entryCost = inCost
		balanceAfter = target.OnHand

	case mv.Type.Decreasing():
		if target.OnHand+qtyEpsilon < mv.Quantity {
			return LedgerEntry{}, &InsufficientStockError{ItemID: mv.ItemID, Available: target.OnHand, Requested: mv.Quantity}
		}
		entryCost = OutboundCost(mv.UnitCost, target.AverageCost, item.UnitCost)
		target.OnHand -= mv.Quantity
		if target.OnHand <= qtyEpsilon {
			target.OnHand = 0
		}
		entryQty = -mv.Quantity
		balanceAfter = target.OnHand

	case mv.Type == TransactionTypeIssueWorkOrder:
		available := target.Available()
		if available+qtyEpsilon < mv.Quantity {
			return LedgerEntry{}, &InsufficientStockError{ItemID: mv.ItemID, Available: available, Requested: mv.Quantity}
		}
		target.Reserved += mv.Quantity
		entryQty = -mv.Quantity
		entryCost = OutboundCost(mv.UnitCost, target.AverageCost, item.UnitCost)
		balanceAfter = target.Available()

	case mv.Type == TransactionTypeReturnWorkOrder:
		target.Reserved = math.Max(0, target.Reserved-mv.Quantity)
		entryQty = mv.Quantity
		entryCost = OutboundCost(mv.UnitCost, target.AverageCost, item.UnitCost)
		balanceAfter = target.Available()

	case mv.Type == TransactionTypeCancelWorkOrder:
		if mv.Restock {
			target.OnHand += mv.Quantity
		} else {
			target.Reserved = math.Max(0, target.Reserved-mv.Quantity)
		}
		entryQty = mv.Quantity
		entryCost = OutboundCost(mv.UnitCost, target.AverageCost, item.UnitCost)
		balanceAfter = target.Available()

	default:
		return LedgerEntry{}, fmt.Errorf("%w: %q", ErrUnknownType, mv.Type)
	}

	if err := tx.UpdateLocation(ctx, target); err != nil {
		return LedgerEntry{}, fmt.Errorf("stock: update location %d: %w", target.ID, err)
	}

	number, err := tx.NextTransactionNumber(ctx, mv.CompanyID, mv.Type.Prefix())
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("stock: allocate transaction number: %w", err)
	}

	entry := LedgerEntry{
		CompanyID:         mv.CompanyID,
		TransactionNumber: number,
		Type:              mv.Type,
		ItemID:            mv.ItemID,
		Quantity:          entryQty,
		Unit:              item.Unit,
		UnitCost:          entryCost,
		TotalCost:         math.Abs(entryQty) * entryCost,
		BalanceAfter:      balanceAfter,
		FromWarehouseID:   mv.From.WarehouseID,
		FromDeviceID:      mv.From.DeviceID,
		ToWarehouseID:     mv.To.WarehouseID,
		ToDeviceID:        mv.To.DeviceID,
		InvoiceID:         mv.InvoiceID,
		WorkOrderID:       mv.WorkOrderID,
		TransferID:        mv.TransferID,
		Notes:             mv.Notes,
		CreatedBy:         mv.ActorID,
	}
	return tx.InsertEntry(ctx, entry)
}

// resolveTarget picks the balance row a movement mutates. Inbound movements
// lazily create the row. Movements against a device fall back to the
// device's linked warehouse when the device itself holds no record.
func resolveTarget(ctx context.Context, tx Tx, mv Movement) (Location, error) {
	var ref LocationRef
	switch {
	case mv.Type.Increasing(), mv.Type == TransactionTypeReturnWorkOrder, mv.Type == TransactionTypeCancelWorkOrder:
		ref = mv.To
	default:
		ref = mv.From
	}
	if !ref.Valid() {
		return Location{}, ErrInvalidLocation
	}

	loc, err := tx.LocationForUpdate(ctx, mv.CompanyID, mv.ItemID, ref)
	if err == nil {
		return loc, nil
	}
	if !errors.Is(err, ErrNoStockRecord) {
		return Location{}, err
	}

	switch {
	case mv.Type.Increasing():
		return tx.CreateLocation(ctx, mv.CompanyID, mv.ItemID, ref)
	case ref.DeviceID != 0:
		// Device holds no record: fall back to its linked warehouse.
		warehouseID, werr := tx.DeviceWarehouse(ctx, mv.CompanyID, ref.DeviceID)
		if werr != nil {
			return Location{}, werr
		}
		if warehouseID == 0 {
			return Location{}, ErrNoStockRecord
		}
		return tx.LocationForUpdate(ctx, mv.CompanyID, mv.ItemID, LocationRef{WarehouseID: warehouseID})
	default:
		return Location{}, ErrNoStockRecord
	}
}

// NetIssued replays a work order's ledger and returns the net issued
// quantity per item and source location, issues minus returns, floored at
// zero. Cancel entries are excluded: a cancelled claim has already been
// reversed.
func NetIssued(entries []LedgerEntry) map[IssueKey]float64 {
	net := make(map[IssueKey]float64)
	for _, e := range entries {
		key := IssueKey{ItemID: e.ItemID}
		switch e.Type {
		case TransactionTypeIssueWorkOrder:
			key.WarehouseID, key.DeviceID = e.FromWarehouseID, e.FromDeviceID
			net[key] += -e.Quantity
		case TransactionTypeReturnWorkOrder:
			key.WarehouseID, key.DeviceID = e.ToWarehouseID, e.ToDeviceID
			net[key] -= e.Quantity
		}
	}
	for key, qty := range net {
		if qty <= qtyEpsilon {
			delete(net, key)
		}
	}
	return net
}

// IssueKey identifies one work order claim: the item and the location it was
// issued from.
type IssueKey struct {
	ItemID      int64
	WarehouseID int64
	DeviceID    int64
}

// Ref is the location reference of the claim.
func (k IssueKey) Ref() LocationRef {
	return LocationRef{WarehouseID: k.WarehouseID, DeviceID: k.DeviceID}
}
