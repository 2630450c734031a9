package workorders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegisfm/aegisfm/internal/stock"
	"github.com/aegisfm/aegisfm/internal/stock/stocktest"
)

const (
	companyID   = int64(1)
	itemID      = int64(10)
	warehouseID = int64(5)
	deviceID    = int64(100)
	actorID     = int64(7)
)

type memoryRepo struct {
	orders    map[int64]WorkOrder
	checklist map[int64][]ChecklistItem
	stock     *stocktest.Store
	nextID    int64
	nextSeq   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:    make(map[int64]WorkOrder),
		checklist: make(map[int64][]ChecklistItem),
		stock:     stocktest.NewStore(),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapOrders := make(map[int64]WorkOrder, len(r.orders))
	for k, v := range r.orders {
		snapOrders[k] = v
	}
	snapChecklist := make(map[int64][]ChecklistItem, len(r.checklist))
	for k, v := range r.checklist {
		snapChecklist[k] = append([]ChecklistItem(nil), v...)
	}
	snapNextID, snapNextSeq := r.nextID, r.nextSeq

	err := r.stock.WithTx(ctx, func(ctx context.Context, _ stock.Tx) error {
		return fn(ctx, &memoryTx{repo: r})
	})
	if err != nil {
		r.orders = snapOrders
		r.checklist = snapChecklist
		r.nextID, r.nextSeq = snapNextID, snapNextSeq
	}
	return err
}

func (tx *memoryTx) Create(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	tx.repo.nextID++
	wo.ID = tx.repo.nextID
	wo.CreatedAt = time.Now().UTC()
	wo.UpdatedAt = wo.CreatedAt
	tx.repo.orders[wo.ID] = wo
	return wo, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, companyID, id int64) (WorkOrder, error) {
	wo, ok := tx.repo.orders[id]
	if !ok || wo.CompanyID != companyID {
		return WorkOrder{}, ErrNotFound
	}
	return wo, nil
}

func (tx *memoryTx) NextNumber(ctx context.Context, companyID int64) (string, error) {
	tx.repo.nextSeq++
	return fmt.Sprintf("WO-%s-%05d", time.Now().UTC().Format("2006"), tx.repo.nextSeq), nil
}

func (tx *memoryTx) AddChecklistItem(ctx context.Context, item ChecklistItem) (ChecklistItem, error) {
	item.ID = int64(len(tx.repo.checklist[item.WorkOrderID]) + 1)
	tx.repo.checklist[item.WorkOrderID] = append(tx.repo.checklist[item.WorkOrderID], item)
	return item, nil
}

func (tx *memoryTx) Checklist(ctx context.Context, companyID, workOrderID int64) ([]ChecklistItem, error) {
	return tx.repo.checklist[workOrderID], nil
}

func (tx *memoryTx) CompleteChecklistItem(ctx context.Context, companyID, workOrderID, itemID, actorID int64) error {
	items := tx.repo.checklist[workOrderID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].Completed = true
			items[i].CompletedBy = actorID
			items[i].CompletedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) MarkCompleted(ctx context.Context, companyID, id int64) error {
	wo, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	wo.Status = StatusCompleted
	tx.repo.orders[id] = wo
	return nil
}

func (tx *memoryTx) MarkApproved(ctx context.Context, companyID, id, actorID int64) error {
	wo, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	wo.Status = StatusApproved
	wo.ApprovedBy = actorID
	wo.ApprovedAt = time.Now().UTC()
	tx.repo.orders[id] = wo
	return nil
}

func (tx *memoryTx) MarkCancelled(ctx context.Context, companyID, id, actorID int64, note string) error {
	wo, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	wo.Status = StatusCancelled
	wo.CancelledBy = actorID
	wo.CancelledAt = time.Now().UTC()
	wo.CancelNote = note
	tx.repo.orders[id] = wo
	return nil
}

func (tx *memoryTx) Delete(ctx context.Context, companyID, id int64) error {
	if _, ok := tx.repo.orders[id]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.orders, id)
	delete(tx.repo.checklist, id)
	return nil
}

func (tx *memoryTx) Stock() stock.Tx {
	return tx.repo.stock
}

func (r *memoryRepo) Get(ctx context.Context, companyID, id int64) (WorkOrder, error) {
	wo, ok := r.orders[id]
	if !ok || wo.CompanyID != companyID {
		return WorkOrder{}, ErrNotFound
	}
	return wo, nil
}

func (r *memoryRepo) List(ctx context.Context, companyID int64, filter ListFilter) ([]WorkOrder, int, error) {
	result := []WorkOrder{}
	for _, wo := range r.orders {
		if wo.CompanyID != companyID {
			continue
		}
		if filter.Status != "" && wo.Status != filter.Status {
			continue
		}
		result = append(result, wo)
	}
	return result, len(result), nil
}

func (r *memoryRepo) Checklist(ctx context.Context, companyID, workOrderID int64) ([]ChecklistItem, error) {
	return r.checklist[workOrderID], nil
}

func (r *memoryRepo) EntriesForWorkOrder(ctx context.Context, companyID, workOrderID int64) ([]stock.LedgerEntry, error) {
	return r.stock.EntriesForWorkOrder(ctx, companyID, workOrderID)
}

// seedService builds a service over one item stocked at the warehouse the
// device is linked to.
func seedService(t *testing.T, onHand float64) (*memoryRepo, *Service) {
	t.Helper()
	repo := newMemoryRepo()
	repo.stock.SeedItem(stock.ItemInfo{ID: itemID, ItemNumber: "FLT-001", Unit: "pcs", UnitCost: 3})
	repo.stock.SeedDevice(deviceID, warehouseID)
	repo.stock.SeedLocation(stock.Location{
		CompanyID: companyID, ItemID: itemID, WarehouseID: warehouseID,
		OnHand: onHand, AverageCost: 2, LastCost: 2,
	})
	return repo, NewService(repo, nil, nil)
}

func createOrder(t *testing.T, svc *Service, checklist ...string) WorkOrder {
	t.Helper()
	wo, err := svc.Create(context.Background(), CreateInput{
		CompanyID: companyID,
		Title:     "Replace filter",
		DeviceID:  deviceID,
		Checklist: checklist,
		ActorID:   actorID,
	})
	require.NoError(t, err)
	return wo
}

func warehouseLoc(repo *memoryRepo) stock.Location {
	return repo.stock.Location(companyID, itemID, stock.LocationRef{WarehouseID: warehouseID})
}

func TestCreateAllocatesNumberAndChecklist(t *testing.T) {
	_, svc := seedService(t, 0)
	wo := createOrder(t, svc, "drain fluid", "swap filter")

	year := time.Now().UTC().Format("2006")
	require.Equal(t, "WO-"+year+"-00001", wo.Number)
	require.Equal(t, StatusOpen, wo.Status)

	items, err := svc.Checklist(context.Background(), companyID, wo.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "drain fluid", items[0].Description)
	require.False(t, items[0].Completed)

	second := createOrder(t, svc)
	require.Equal(t, "WO-"+year+"-00002", second.Number)
}

func TestCreateRequiresTitle(t *testing.T) {
	_, svc := seedService(t, 0)
	_, err := svc.Create(context.Background(), CreateInput{CompanyID: companyID, Title: "  "})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestIssueReturnRoundTrip(t *testing.T) {
	repo, svc := seedService(t, 100)
	wo := createOrder(t, svc)

	entry, err := svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 5, ActorID: actorID,
	})
	require.NoError(t, err)
	require.InDelta(t, -5, entry.Quantity, 0.0001)
	require.InDelta(t, 2, entry.UnitCost, 0.0001)
	require.Equal(t, deviceID, entry.FromDeviceID)

	loc := warehouseLoc(repo)
	require.InDelta(t, 100, loc.OnHand, 0.0001)
	require.InDelta(t, 5, loc.Reserved, 0.0001)

	ret, err := svc.ReturnItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 5, ActorID: actorID,
	})
	require.NoError(t, err)
	require.InDelta(t, 5, ret.Quantity, 0.0001)
	require.InDelta(t, 2, ret.UnitCost, 0.0001)

	loc = warehouseLoc(repo)
	require.InDelta(t, 100, loc.OnHand, 0.0001)
	require.InDelta(t, 0, loc.Reserved, 0.0001)
}

func TestReturnBoundedByNetIssued(t *testing.T) {
	_, svc := seedService(t, 100)
	wo := createOrder(t, svc)

	_, err := svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 3, ActorID: actorID,
	})
	require.NoError(t, err)

	_, err = svc.ReturnItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 4, ActorID: actorID,
	})
	require.ErrorIs(t, err, ErrReturnExceedsIssued)
}

func TestIssueInsufficientStock(t *testing.T) {
	repo, svc := seedService(t, 10)
	wo := createOrder(t, svc)

	_, err := svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 8, ActorID: actorID,
	})
	require.NoError(t, err)

	// Only 2 remain available; the hold counts against availability.
	_, err = svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 3, ActorID: actorID,
	})
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.InDelta(t, 2, insufficient.Available, 0.0001)

	loc := warehouseLoc(repo)
	require.InDelta(t, 10, loc.OnHand, 0.0001)
	require.InDelta(t, 8, loc.Reserved, 0.0001)
}

func TestApproveConsumesReservation(t *testing.T) {
	repo, svc := seedService(t, 100)
	wo := createOrder(t, svc)

	_, err := svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 20, ActorID: actorID,
	})
	require.NoError(t, err)
	entriesBefore := len(repo.stock.Entries)

	require.NoError(t, svc.Complete(context.Background(), companyID, wo.ID, actorID))
	require.NoError(t, svc.Approve(context.Background(), companyID, wo.ID, actorID))

	loc := warehouseLoc(repo)
	require.InDelta(t, 80, loc.OnHand, 0.0001)
	require.InDelta(t, 0, loc.Reserved, 0.0001)
	// Approval finalizes existing entries, it does not write new ones.
	require.Len(t, repo.stock.Entries, entriesBefore)

	approved, err := svc.Get(context.Background(), companyID, wo.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, actorID, approved.ApprovedBy)

	err = svc.Approve(context.Background(), companyID, wo.ID, actorID)
	require.ErrorIs(t, err, ErrAlreadyApproved)
	loc = warehouseLoc(repo)
	require.InDelta(t, 80, loc.OnHand, 0.0001)
	require.InDelta(t, 0, loc.Reserved, 0.0001)
}

func TestApproveRequiresCompletion(t *testing.T) {
	_, svc := seedService(t, 100)
	wo := createOrder(t, svc)

	err := svc.Approve(context.Background(), companyID, wo.ID, actorID)
	require.ErrorIs(t, err, ErrNotCompleted)

	require.NoError(t, svc.Complete(context.Background(), companyID, wo.ID, actorID))
	// Completing twice is a no-op.
	require.NoError(t, svc.Complete(context.Background(), companyID, wo.ID, actorID))
	require.NoError(t, svc.Approve(context.Background(), companyID, wo.ID, actorID))
}

func TestApproveRequiresCompletedChecklist(t *testing.T) {
	_, svc := seedService(t, 100)
	wo := createOrder(t, svc, "inspect bearings")
	require.NoError(t, svc.Complete(context.Background(), companyID, wo.ID, actorID))

	err := svc.Approve(context.Background(), companyID, wo.ID, actorID)
	require.ErrorIs(t, err, ErrChecklistIncomplete)

	items, err := svc.Checklist(context.Background(), companyID, wo.ID)
	require.NoError(t, err)
	require.NoError(t, svc.CompleteChecklistItem(context.Background(), companyID, wo.ID, items[0].ID, actorID))
	require.NoError(t, svc.Approve(context.Background(), companyID, wo.ID, actorID))
}

func TestCancelBeforeApprovalReleasesHold(t *testing.T) {
	repo, svc := seedService(t, 100)
	wo := createOrder(t, svc)

	issue := func(qty float64) {
		_, err := svc.IssueItem(context.Background(), IssueInput{
			CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: qty, ActorID: actorID,
		})
		require.NoError(t, err)
	}
	issue(3)
	_, err := svc.ReturnItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 1, ActorID: actorID,
	})
	require.NoError(t, err)

	result, err := svc.Cancel(context.Background(), companyID, wo.ID, actorID, "duplicate job")
	require.NoError(t, err)
	require.Equal(t, CancelResult{ItemsReversed: 1, WasApproved: false}, result)

	loc := warehouseLoc(repo)
	require.InDelta(t, 100, loc.OnHand, 0.0001)
	require.InDelta(t, 0, loc.Reserved, 0.0001)

	cancels := []stock.LedgerEntry{}
	for _, e := range repo.stock.Entries {
		if e.Type == stock.TransactionTypeCancelWorkOrder {
			cancels = append(cancels, e)
		}
	}
	require.Len(t, cancels, 1)
	require.InDelta(t, 2, cancels[0].Quantity, 0.0001)
	require.Equal(t, wo.ID, cancels[0].WorkOrderID)
	require.Equal(t, "duplicate job", cancels[0].Notes)

	_, err = svc.Cancel(context.Background(), companyID, wo.ID, actorID, "")
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancelAfterApprovalRestocks(t *testing.T) {
	repo, svc := seedService(t, 0)
	wo := createOrder(t, svc)

	// Receive 100 @ $2, issue 20, approve, then cancel: stock must return
	// to its post-receive state with exactly one reversing entry.
	err := repo.stock.WithTx(context.Background(), func(ctx context.Context, tx stock.Tx) error {
		_, err := stock.Apply(ctx, tx, stock.Movement{
			CompanyID: companyID, ItemID: itemID, Type: stock.TransactionTypeReceiveInvoice,
			Quantity: 100, UnitCost: 2, To: stock.LocationRef{WarehouseID: warehouseID}, ActorID: actorID,
		})
		return err
	})
	require.NoError(t, err)
	loc := warehouseLoc(repo)
	require.InDelta(t, 100, loc.OnHand, 0.0001)
	require.InDelta(t, 2, loc.AverageCost, 0.0001)

	_, err = svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 20, ActorID: actorID,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Complete(context.Background(), companyID, wo.ID, actorID))
	require.NoError(t, svc.Approve(context.Background(), companyID, wo.ID, actorID))

	loc = warehouseLoc(repo)
	require.InDelta(t, 80, loc.OnHand, 0.0001)
	require.InDelta(t, 0, loc.Reserved, 0.0001)

	result, err := svc.Cancel(context.Background(), companyID, wo.ID, actorID, "rework")
	require.NoError(t, err)
	require.Equal(t, CancelResult{ItemsReversed: 1, WasApproved: true}, result)

	loc = warehouseLoc(repo)
	require.InDelta(t, 100, loc.OnHand, 0.0001)
	require.InDelta(t, 0, loc.Reserved, 0.0001)

	cancels := 0
	for _, e := range repo.stock.Entries {
		if e.Type == stock.TransactionTypeCancelWorkOrder {
			cancels++
			require.InDelta(t, 20, e.Quantity, 0.0001)
		}
	}
	require.Equal(t, 1, cancels)
}

func TestIssueRejectedOnFinalizedOrders(t *testing.T) {
	_, svc := seedService(t, 100)

	approved := createOrder(t, svc)
	_, err := svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: approved.ID, ItemID: itemID, Quantity: 1, ActorID: actorID,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Complete(context.Background(), companyID, approved.ID, actorID))
	require.NoError(t, svc.Approve(context.Background(), companyID, approved.ID, actorID))
	_, err = svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: approved.ID, ItemID: itemID, Quantity: 1, ActorID: actorID,
	})
	require.ErrorIs(t, err, ErrAlreadyApproved)
	_, err = svc.ReturnItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: approved.ID, ItemID: itemID, Quantity: 1, ActorID: actorID,
	})
	require.ErrorIs(t, err, ErrAlreadyApproved)

	cancelled := createOrder(t, svc)
	_, err = svc.Cancel(context.Background(), companyID, cancelled.ID, actorID, "")
	require.NoError(t, err)
	_, err = svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: cancelled.ID, ItemID: itemID, Quantity: 1, ActorID: actorID,
	})
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestIssuedItemsReplay(t *testing.T) {
	_, svc := seedService(t, 100)
	wo := createOrder(t, svc)

	for _, qty := range []float64{4, 2} {
		_, err := svc.IssueItem(context.Background(), IssueInput{
			CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: qty, ActorID: actorID,
		})
		require.NoError(t, err)
	}
	_, err := svc.ReturnItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 1, ActorID: actorID,
	})
	require.NoError(t, err)

	items, err := svc.IssuedItems(context.Background(), companyID, wo.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.InDelta(t, 5, items[0].Quantity, 0.0001)
	require.InDelta(t, 2, items[0].UnitCost, 0.0001)
	require.Equal(t, deviceID, items[0].DeviceID)
}

func TestDeleteRefusedOnceStockMoved(t *testing.T) {
	_, svc := seedService(t, 100)
	wo := createOrder(t, svc)

	_, err := svc.IssueItem(context.Background(), IssueInput{
		CompanyID: companyID, WorkOrderID: wo.ID, ItemID: itemID, Quantity: 1, ActorID: actorID,
	})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), companyID, wo.ID, actorID)
	require.ErrorIs(t, err, ErrHasMovements)

	untouched := createOrder(t, svc)
	require.NoError(t, svc.Delete(context.Background(), companyID, untouched.ID, actorID))
	_, err = svc.Get(context.Background(), companyID, untouched.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
