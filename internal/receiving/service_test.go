package receiving

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegisfm/aegisfm/internal/stock"
	"github.com/aegisfm/aegisfm/internal/stock/stocktest"
)

const (
	companyID  = int64(1)
	mainWH     = int64(5)
	otherWH    = int64(6)
	actorID    = int64(7)
	filterItem = int64(10)
	gasketItem = int64(11)
)

type memoryRepo struct {
	invoices map[int64]Invoice
	lines    map[int64][]Line
	stock    *stocktest.Store
	nextID   int64
	nextLine int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices: make(map[int64]Invoice),
		lines:    make(map[int64][]Line),
		stock:    stocktest.NewStore(),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapInvoices := make(map[int64]Invoice, len(r.invoices))
	for k, v := range r.invoices {
		snapInvoices[k] = v
	}
	snapLines := make(map[int64][]Line, len(r.lines))
	for k, v := range r.lines {
		snapLines[k] = append([]Line(nil), v...)
	}
	snapID, snapLine := r.nextID, r.nextLine

	err := r.stock.WithTx(ctx, func(ctx context.Context, _ stock.Tx) error {
		return fn(ctx, &memoryTx{repo: r})
	})
	if err != nil {
		r.invoices = snapInvoices
		r.lines = snapLines
		r.nextID, r.nextLine = snapID, snapLine
	}
	return err
}

func (tx *memoryTx) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	for _, existing := range tx.repo.invoices {
		if existing.CompanyID == inv.CompanyID && existing.Number == inv.Number {
			return Invoice{}, ErrDuplicateNumber
		}
	}
	tx.repo.nextID++
	inv.ID = tx.repo.nextID
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	tx.repo.invoices[inv.ID] = inv
	return inv, nil
}

func (tx *memoryTx) CreateLine(ctx context.Context, line Line) (Line, error) {
	tx.repo.nextLine++
	line.ID = tx.repo.nextLine
	tx.repo.lines[line.InvoiceID] = append(tx.repo.lines[line.InvoiceID], line)
	return line, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, companyID, id int64) (Invoice, error) {
	inv, ok := tx.repo.invoices[id]
	if !ok || inv.CompanyID != companyID {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (tx *memoryTx) Lines(ctx context.Context, invoiceID int64) ([]Line, error) {
	return append([]Line(nil), tx.repo.lines[invoiceID]...), nil
}

func (tx *memoryTx) AddReceivedQty(ctx context.Context, lineID int64, qty float64) error {
	for id, lines := range tx.repo.lines {
		for i := range lines {
			if lines[i].ID == lineID {
				lines[i].ReceivedQty += qty
				tx.repo.lines[id] = lines
				return nil
			}
		}
	}
	return ErrLineNotFound
}

func (tx *memoryTx) SetStatus(ctx context.Context, companyID, id int64, status ReceiveStatus) error {
	inv, ok := tx.repo.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	tx.repo.invoices[id] = inv
	return nil
}

func (tx *memoryTx) Stock() stock.Tx {
	return tx.repo.stock
}

func (r *memoryRepo) Get(ctx context.Context, companyID, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok || inv.CompanyID != companyID {
		return Invoice{}, ErrNotFound
	}
	inv.Lines = append([]Line(nil), r.lines[id]...)
	return inv, nil
}

func (r *memoryRepo) List(ctx context.Context, companyID int64, filter ListFilter) ([]Invoice, int, error) {
	result := []Invoice{}
	for _, inv := range r.invoices {
		if inv.CompanyID == companyID {
			result = append(result, inv)
		}
	}
	return result, len(result), nil
}

type staticMain int64

func (m staticMain) MainWarehouse(ctx context.Context, companyID int64) (int64, error) {
	return int64(m), nil
}

func seedService(t *testing.T) (*memoryRepo, *Service) {
	t.Helper()
	repo := newMemoryRepo()
	repo.stock.SeedItem(stock.ItemInfo{ID: filterItem, ItemNumber: "FLT-001", Unit: "pcs", UnitCost: 3})
	repo.stock.SeedItem(stock.ItemInfo{ID: gasketItem, ItemNumber: "GSK-002", Unit: "pcs", UnitCost: 1})
	return repo, NewService(repo, staticMain(mainWH), nil, nil, nil)
}

func createInvoice(t *testing.T, svc *Service, lines ...LineInput) Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CompanyID: companyID,
		Number:    "INV-2026-0042",
		VendorID:  3,
		Lines:     lines,
		ActorID:   actorID,
	})
	require.NoError(t, err)
	return inv
}

func warehouseLoc(repo *memoryRepo, itemID, warehouseID int64) stock.Location {
	return repo.stock.Location(companyID, itemID, stock.LocationRef{WarehouseID: warehouseID})
}

func TestCreateInvoicePending(t *testing.T) {
	repo, svc := seedService(t)
	inv := createInvoice(t, svc, LineInput{ItemID: filterItem, Quantity: 10, UnitCost: 5})

	require.Equal(t, StatusPending, inv.Status)
	require.Len(t, inv.Lines, 1)
	require.Empty(t, repo.stock.Entries)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CompanyID: companyID, Number: "INV-2026-0042",
		Lines: []LineInput{{ItemID: filterItem, Quantity: 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestReceiveLinePartial(t *testing.T) {
	repo, svc := seedService(t)
	inv := createInvoice(t, svc, LineInput{ItemID: filterItem, Quantity: 10, UnitCost: 5})

	entry, err := svc.ReceiveLine(context.Background(), ReceiveLineInput{
		CompanyID: companyID, InvoiceID: inv.ID, LineID: inv.Lines[0].ID,
		WarehouseID: otherWH, Quantity: 4, ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, stock.TransactionTypeReceiveInvoice, entry.Type)
	require.InDelta(t, 4, entry.Quantity, 0.0001)
	require.InDelta(t, 5, entry.UnitCost, 0.0001)
	require.Equal(t, inv.ID, entry.InvoiceID)

	loc := warehouseLoc(repo, filterItem, otherWH)
	require.InDelta(t, 4, loc.OnHand, 0.0001)
	require.InDelta(t, 5, loc.AverageCost, 0.0001)

	reloaded, err := svc.Get(context.Background(), companyID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, reloaded.Status)
	require.InDelta(t, 6, reloaded.Lines[0].Remaining(), 0.0001)

	_, err = svc.ReceiveLine(context.Background(), ReceiveLineInput{
		CompanyID: companyID, InvoiceID: inv.ID, LineID: inv.Lines[0].ID,
		WarehouseID: otherWH, Quantity: 6, ActorID: actorID,
	})
	require.NoError(t, err)
	reloaded, err = svc.Get(context.Background(), companyID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, reloaded.Status)
}

func TestReceiveLineRejectsOverReceive(t *testing.T) {
	repo, svc := seedService(t)
	inv := createInvoice(t, svc, LineInput{ItemID: filterItem, Quantity: 10, UnitCost: 5})

	_, err := svc.ReceiveLine(context.Background(), ReceiveLineInput{
		CompanyID: companyID, InvoiceID: inv.ID, LineID: inv.Lines[0].ID,
		WarehouseID: otherWH, Quantity: 11, ActorID: actorID,
	})
	require.ErrorIs(t, err, ErrOverReceive)
	require.Empty(t, repo.stock.Entries)

	reloaded, err := svc.Get(context.Background(), companyID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, reloaded.Status)
}

func TestReceiveAllToMainWarehouse(t *testing.T) {
	repo, svc := seedService(t)
	inv := createInvoice(t, svc,
		LineInput{ItemID: filterItem, Quantity: 10, UnitCost: 5},
		LineInput{ItemID: gasketItem, Quantity: 20, UnitCost: 0.5},
	)

	entries, err := svc.ReceiveAll(context.Background(), companyID, inv.ID, 0, actorID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.InDelta(t, 10, warehouseLoc(repo, filterItem, mainWH).OnHand, 0.0001)
	require.InDelta(t, 20, warehouseLoc(repo, gasketItem, mainWH).OnHand, 0.0001)

	reloaded, err := svc.Get(context.Background(), companyID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, reloaded.Status)

	_, err = svc.ReceiveAll(context.Background(), companyID, inv.ID, 0, actorID)
	require.ErrorIs(t, err, ErrAlreadyReceived)
}

func TestReceiveAllSkipsReceivedLines(t *testing.T) {
	repo, svc := seedService(t)
	inv := createInvoice(t, svc,
		LineInput{ItemID: filterItem, Quantity: 10, UnitCost: 5},
		LineInput{ItemID: gasketItem, Quantity: 20, UnitCost: 0.5},
	)

	_, err := svc.ReceiveLine(context.Background(), ReceiveLineInput{
		CompanyID: companyID, InvoiceID: inv.ID, LineID: inv.Lines[0].ID,
		Quantity: 10, ActorID: actorID,
	})
	require.NoError(t, err)

	entries, err := svc.ReceiveAll(context.Background(), companyID, inv.ID, 0, actorID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, gasketItem, entries[0].ItemID)
	require.InDelta(t, 10, warehouseLoc(repo, filterItem, mainWH).OnHand, 0.0001)
}

func TestDirectReceive(t *testing.T) {
	repo, svc := seedService(t)

	entry, err := svc.Receive(context.Background(), ReceiveInput{
		CompanyID: companyID, ItemID: filterItem, Quantity: 3, UnitCost: 4,
		SourceReference: "PO-1009", ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, "PO-1009", entry.Notes)
	require.InDelta(t, 3, warehouseLoc(repo, filterItem, mainWH).OnHand, 0.0001)
}
