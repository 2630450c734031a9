package items

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegisfm/aegisfm/internal/stock"
	"github.com/aegisfm/aegisfm/internal/stock/stocktest"
)

type memoryRepo struct {
	items      map[int64]Item
	categories map[int64]Category
	stock      *stocktest.Store
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:      make(map[int64]Item),
		categories: make(map[int64]Category),
		stock:      stocktest.NewStore(),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (tx *memoryTx) CreateItem(ctx context.Context, item Item) (Item, error) {
	for _, existing := range tx.repo.items {
		if existing.CompanyID == item.CompanyID && existing.ItemNumber == item.ItemNumber {
			return Item{}, ErrDuplicateNumber
		}
	}
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	item.IsActive = true
	tx.repo.items[item.ID] = item
	tx.repo.stock.SeedItem(stock.ItemInfo{
		ID: item.ID, ItemNumber: item.ItemNumber, Description: item.Description,
		Unit: item.Unit, UnitCost: item.UnitCost, MinimumStock: item.MinimumStock,
	})
	return item, nil
}

func (tx *memoryTx) DeleteItem(ctx context.Context, companyID, id int64) error {
	if _, ok := tx.repo.items[id]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.items, id)
	return nil
}

func (tx *memoryTx) Stock() stock.Tx {
	return tx.repo.stock
}

func (r *memoryRepo) GetItem(ctx context.Context, companyID, id int64) (Item, error) {
	item, ok := r.items[id]
	if !ok || item.CompanyID != companyID {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (r *memoryRepo) ListItems(ctx context.Context, companyID int64, filter ListFilter) ([]Item, int, error) {
	result := []Item{}
	for _, item := range r.items {
		if item.CompanyID == companyID {
			result = append(result, item)
		}
	}
	return result, len(result), nil
}

func (r *memoryRepo) UpdateItem(ctx context.Context, item Item) error {
	if _, ok := r.items[item.ID]; !ok {
		return ErrNotFound
	}
	r.items[item.ID] = item
	return nil
}

func (r *memoryRepo) StockSummary(ctx context.Context, companyID, id int64) (float64, float64, int, error) {
	var onHand, reserved float64
	for _, loc := range r.stock.Locations {
		if loc.ItemID == id {
			onHand += loc.OnHand
			reserved += loc.Reserved
		}
	}
	rows := 0
	for _, e := range r.stock.Entries {
		if e.ItemID == id {
			rows++
		}
	}
	return onHand, reserved, rows, nil
}

func (r *memoryRepo) ListCategories(ctx context.Context, companyID int64) ([]Category, error) {
	result := []Category{}
	for _, c := range r.categories {
		if c.CompanyID == companyID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (r *memoryRepo) CreateCategory(ctx context.Context, category Category) (Category, error) {
	r.nextID++
	category.ID = r.nextID
	category.IsActive = true
	r.categories[category.ID] = category
	return category, nil
}

func (r *memoryRepo) UpdateCategory(ctx context.Context, category Category) error {
	if _, ok := r.categories[category.ID]; !ok {
		return ErrNotFound
	}
	r.categories[category.ID] = category
	return nil
}

func TestCreateItemWithInitialStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, CreateItemInput{
		CompanyID:  1,
		ItemNumber: "FLT-001",
		Unit:       "pcs",
		UnitCost:   25,
		InitialStock: &InitialStockInput{
			WarehouseID: 5,
			Quantity:    40,
			UnitCost:    22,
		},
	})
	require.NoError(t, err)
	require.NotZero(t, item.ID)

	loc := repo.stock.Location(1, item.ID, stock.LocationRef{WarehouseID: 5})
	require.InDelta(t, 40.0, loc.OnHand, 0.0001)
	require.InDelta(t, 22.0, loc.AverageCost, 0.0001)

	require.Len(t, repo.stock.Entries, 1)
	require.Equal(t, stock.TransactionTypeInitialStock, repo.stock.Entries[0].Type)
	require.InDelta(t, 40.0, repo.stock.Entries[0].Quantity, 0.0001)
}

func TestCreateItemRejectsDuplicateNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, CreateItemInput{CompanyID: 1, ItemNumber: "FLT-001", Unit: "pcs"})
	require.NoError(t, err)
	_, err = svc.CreateItem(ctx, CreateItemInput{CompanyID: 1, ItemNumber: "FLT-001", Unit: "pcs"})
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestCreateItemValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, CreateItemInput{CompanyID: 1, Unit: "pcs"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateItem(ctx, CreateItemInput{
		CompanyID: 1, ItemNumber: "X", Unit: "pcs",
		InitialStock: &InitialStockInput{Quantity: 5},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteRefusedWhileStockHeld(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, CreateItemInput{
		CompanyID: 1, ItemNumber: "FLT-001", Unit: "pcs",
		InitialStock: &InitialStockInput{WarehouseID: 5, Quantity: 3, UnitCost: 10},
	})
	require.NoError(t, err)

	err = svc.Delete(ctx, 1, item.ID, 9)
	require.ErrorIs(t, err, ErrHasStock)
}

func TestDeleteCleanItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, CreateItemInput{CompanyID: 1, ItemNumber: "FLT-001", Unit: "pcs"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 1, item.ID, 9))
	_, err = svc.Get(ctx, 1, item.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
