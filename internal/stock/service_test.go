package stock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegisfm/aegisfm/internal/stock"
	"github.com/aegisfm/aegisfm/internal/stock/stocktest"
)

func newService(store *stocktest.Store) *stock.Service {
	return stock.NewService(store, nil, nil, nil, nil)
}

func TestAdjustRoundTrip(t *testing.T) {
	store := seedStore(t)
	svc := newService(store)
	ctx := context.Background()
	wh := stock.LocationRef{WarehouseID: 5}

	entry, err := svc.Adjust(ctx, stock.AdjustInput{
		CompanyID: companyID, ItemID: 10, Location: wh,
		Quantity: 12, UnitCost: 50, Increase: true, ActorID: 9,
	})
	require.NoError(t, err)
	require.Equal(t, stock.TransactionTypeAdjustmentPlus, entry.Type)
	require.InDelta(t, 12.0, entry.BalanceAfter, 0.0001)

	entry, err = svc.Adjust(ctx, stock.AdjustInput{
		CompanyID: companyID, ItemID: 10, Location: wh,
		Quantity: 2, ActorID: 9,
	})
	require.NoError(t, err)
	require.Equal(t, stock.TransactionTypeAdjustmentMinus, entry.Type)
	require.InDelta(t, 10.0, entry.BalanceAfter, 0.0001)
	require.InDelta(t, 50.0, entry.UnitCost, 0.0001)
}

func TestAdjustValidation(t *testing.T) {
	store := seedStore(t)
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, stock.AdjustInput{CompanyID: companyID, ItemID: 10, Quantity: 1})
	require.ErrorIs(t, err, stock.ErrInvalidLocation)

	_, err = svc.Adjust(ctx, stock.AdjustInput{
		CompanyID: companyID, ItemID: 10,
		Location: stock.LocationRef{WarehouseID: 5}, Quantity: -1,
	})
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)
}

func TestItemStockAcrossLocations(t *testing.T) {
	store := seedStore(t)
	svc := newService(store)
	ctx := context.Background()

	for _, wh := range []int64{5, 6} {
		_, err := svc.Adjust(ctx, stock.AdjustInput{
			CompanyID: companyID, ItemID: 10, Location: stock.LocationRef{WarehouseID: wh},
			Quantity: 4, UnitCost: 10, Increase: true,
		})
		require.NoError(t, err)
	}

	locations, err := svc.ItemStock(ctx, companyID, 10)
	require.NoError(t, err)
	require.Len(t, locations, 2)
}

func TestDeviceStockMergesLinkedWarehouse(t *testing.T) {
	store := seedStore(t)
	svc := newService(store)
	ctx := context.Background()

	// item 10 held by the device itself, item 11 only at the linked warehouse
	store.SeedLocation(stock.Location{CompanyID: companyID, ItemID: 10, DeviceID: 100, OnHand: 2})
	store.SeedLocation(stock.Location{CompanyID: companyID, ItemID: 10, WarehouseID: 5, OnHand: 9})
	store.SeedLocation(stock.Location{CompanyID: companyID, ItemID: 11, WarehouseID: 5, OnHand: 6})

	views, err := svc.DeviceStock(ctx, companyID, 100)
	require.NoError(t, err)
	require.Len(t, views, 2)
	byItem := map[int64]stock.View{}
	for _, v := range views {
		byItem[v.ItemID] = v
	}
	// the device's own row wins over the warehouse row for the same item
	require.InDelta(t, 2.0, byItem[10].OnHand, 0.0001)
	require.Equal(t, int64(100), byItem[10].DeviceID)
	require.InDelta(t, 6.0, byItem[11].OnHand, 0.0001)
	require.Equal(t, int64(5), byItem[11].WarehouseID)
}

func TestLedgerFilterByWorkOrder(t *testing.T) {
	store := seedStore(t)
	svc := newService(store)
	ctx := context.Background()
	wh := stock.LocationRef{WarehouseID: 5}

	apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeReceiveInvoice,
		Quantity: 10, UnitCost: 100, To: wh,
	})
	apply(t, store, stock.Movement{
		CompanyID: companyID, ItemID: 10, Type: stock.TransactionTypeIssueWorkOrder,
		Quantity: 2, From: wh, WorkOrderID: 55,
	})

	entries, total, err := svc.Ledger(ctx, companyID, stock.LedgerFilter{WorkOrderID: 55})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, stock.TransactionTypeIssueWorkOrder, entries[0].Type)
}
