package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegisfm/aegisfm/internal/stock"
	"github.com/aegisfm/aegisfm/internal/stock/stocktest"
)

const companyID = int64(1)

func seedStore(t *testing.T) *stocktest.Store {
	t.Helper()
	store := stocktest.NewStore()
	store.SeedItem(stock.ItemInfo{ID: 10, ItemNumber: "FLT-001", Description: "HVAC filter", Unit: "pcs", UnitCost: 25})
	store.SeedItem(stock.ItemInfo{ID: 11, ItemNumber: "BLT-002", Description: "Drive belt", Unit: "pcs", UnitCost: 12})
	store.SeedDevice(100, 5)
	return store
}

func apply(t *testing.T, store *stocktest.Store, mv stock.Movement) stock.LedgerEntry {
	t.Helper()
	var entry stock.LedgerEntry
	err := store.WithTx(context.Background(), func(ctx context.Context, tx stock.Tx) error {
		var err error
		entry, err = stock.Apply(ctx, tx, mv)
		return err
	})
	require.NoError(t, err)
	return entry
}

func applyErr(t *testing.T, store *stocktest.Store, mv stock.Movement) error {
	t.Helper()
	return store.WithTx(context.Background(), func(ctx context.Context, tx stock.Tx) error {
		_, err := stock.Apply(ctx, tx, mv)
		return err
	})
}

func TestApplyReceiveComputesWeightedAverage(t *testing.T) {
	store := seedStore(t)
	wh := stock.LocationRef{WarehouseID: 5}

	entry := apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 10, UnitCost: 100, To: wh,
	})
	require.InDelta(t, 10.0, entry.Quantity, 0.0001)
	require.InDelta(t, 10.0, entry.BalanceAfter, 0.0001)
	require.Equal(t, "pcs", entry.Unit)

	entry = apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 5, UnitCost: 120, To: wh,
	})
	require.InDelta(t, 15.0, entry.BalanceAfter, 0.0001)

	loc := store.Location(companyID, 10, wh)
	require.InDelta(t, 106.6667, loc.AverageCost, 0.001)
	require.InDelta(t, 120.0, loc.LastCost, 0.0001)
	require.InDelta(t, 15.0, loc.OnHand, 0.0001)
}

func TestApplyTransactionNumberSequence(t *testing.T) {
	store := seedStore(t)
	wh := stock.LocationRef{WarehouseID: 5}
	period := time.Now().UTC().Format("200601")

	first := apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 1, UnitCost: 10, To: wh,
	})
	second := apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 1, UnitCost: 10, To: wh,
	})
	require.Equal(t, "REC-"+period+"-00001", first.TransactionNumber)
	require.Equal(t, "REC-"+period+"-00002", second.TransactionNumber)

	adj := apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeAdjustmentPlus,
		Quantity: 1, UnitCost: 10, To: wh,
	})
	// each prefix advances its own sequence
	require.Equal(t, "ADJ-"+period+"-00001", adj.TransactionNumber)
}

func TestApplyOutboundCarriesAverageCost(t *testing.T) {
	store := seedStore(t)
	wh := stock.LocationRef{WarehouseID: 5}
	apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 10, UnitCost: 100, To: wh,
	})
	apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 5, UnitCost: 120, To: wh,
	})

	entry := apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeAdjustmentMinus,
		Quantity: 8, From: wh,
	})
	require.InDelta(t, -8.0, entry.Quantity, 0.0001)
	require.InDelta(t, 106.6667, entry.UnitCost, 0.001)
	require.InDelta(t, 7.0, entry.BalanceAfter, 0.0001)

	// outbound does not disturb the average
	loc := store.Location(companyID, 10, wh)
	require.InDelta(t, 106.6667, loc.AverageCost, 0.001)
}

func TestApplyRejectsOverdraw(t *testing.T) {
	store := seedStore(t)
	wh := stock.LocationRef{WarehouseID: 5}
	apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 3, UnitCost: 100, To: wh,
	})

	err := applyErr(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeAdjustmentMinus,
		Quantity: 5, From: wh,
	})
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.InDelta(t, 3.0, insufficient.Available, 0.0001)
	require.InDelta(t, 5.0, insufficient.Requested, 0.0001)

	// the failed movement left no trace
	loc := store.Location(companyID, 10, wh)
	require.InDelta(t, 3.0, loc.OnHand, 0.0001)
	require.Len(t, store.Entries, 1)
}

func TestApplyIssueReservesWithoutTouchingOnHand(t *testing.T) {
	store := seedStore(t)
	wh := stock.LocationRef{WarehouseID: 5}
	apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 10, UnitCost: 100, To: wh,
	})

	entry := apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeIssueWorkOrder,
		Quantity: 4, From: wh, WorkOrderID: 77,
	})
	require.InDelta(t, -4.0, entry.Quantity, 0.0001)
	require.InDelta(t, 6.0, entry.BalanceAfter, 0.0001)

	loc := store.Location(companyID, 10, wh)
	require.InDelta(t, 10.0, loc.OnHand, 0.0001)
	require.InDelta(t, 4.0, loc.Reserved, 0.0001)

	// reservations count against availability for further issues
	err := applyErr(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeIssueWorkOrder,
		Quantity: 7, From: wh, WorkOrderID: 78,
	})
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.InDelta(t, 6.0, insufficient.Available, 0.0001)
}

func TestApplyIssueFromDeviceFallsBackToLinkedWarehouse(t *testing.T) {
	store := seedStore(t)
	wh := stock.LocationRef{WarehouseID: 5}
	apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 10, UnitCost: 100, To: wh,
	})

	entry := apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeIssueWorkOrder,
		Quantity: 3, From: stock.LocationRef{DeviceID: 100}, WorkOrderID: 77,
	})
	// entry still references the device it was requested from
	require.Equal(t, int64(100), entry.FromDeviceID)

	// the reservation landed on the linked warehouse row
	loc := store.Location(companyID, 10, wh)
	require.InDelta(t, 3.0, loc.Reserved, 0.0001)
	require.Empty(t, store.Location(companyID, 10, stock.LocationRef{DeviceID: 100}).ID)
}

func TestApplyIssueFromUnlinkedDeviceFails(t *testing.T) {
	store := seedStore(t)
	store.SeedDevice(200, 0)

	err := applyErr(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeIssueWorkOrder,
		Quantity: 1, From: stock.LocationRef{DeviceID: 200}, WorkOrderID: 77,
	})
	require.ErrorIs(t, err, stock.ErrNoStockRecord)
}

func TestApplyRejectsBadMovements(t *testing.T) {
	store := seedStore(t)

	err := applyErr(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: "TELEPORT", Quantity: 1,
		To: stock.LocationRef{WarehouseID: 5},
	})
	require.ErrorIs(t, err, stock.ErrUnknownType)

	err = applyErr(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice, Quantity: 0,
		To: stock.LocationRef{WarehouseID: 5},
	})
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)

	err = applyErr(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice, Quantity: 1,
		To: stock.LocationRef{WarehouseID: 5, DeviceID: 100},
	})
	require.ErrorIs(t, err, stock.ErrInvalidLocation)
}

func TestNetIssuedReplay(t *testing.T) {
	entries := []stock.LedgerEntry{
		{Type: stock.TransactionTypeIssueWorkOrder, ItemID: 10, FromDeviceID: 100, Quantity: -4},
		{Type: stock.TransactionTypeReturnWorkOrder, ItemID: 10, ToDeviceID: 100, Quantity: 1},
		{Type: stock.TransactionTypeIssueWorkOrder, ItemID: 11, FromDeviceID: 100, Quantity: -2},
		{Type: stock.TransactionTypeReturnWorkOrder, ItemID: 11, ToDeviceID: 100, Quantity: 2},
	}
	net := stock.NetIssued(entries)
	require.Len(t, net, 1)
	require.InDelta(t, 3.0, net[stock.IssueKey{ItemID: 10, DeviceID: 100}], 0.0001)
}
