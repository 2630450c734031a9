package transfers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegisfm/aegisfm/internal/stock"
	"github.com/aegisfm/aegisfm/internal/stock/stocktest"
)

const (
	companyID = int64(1)
	sourceID  = int64(5)
	destID    = int64(6)
	actorID   = int64(7)
)

type memoryRepo struct {
	transfers map[int64]Transfer
	lines     map[int64][]Line
	stock     *stocktest.Store
	nextID    int64
	nextLine  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		transfers: make(map[int64]Transfer),
		lines:     make(map[int64][]Line),
		stock:     stocktest.NewStore(),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapTransfers := make(map[int64]Transfer, len(r.transfers))
	for k, v := range r.transfers {
		snapTransfers[k] = v
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
		r.transfers = snapTransfers
		r.lines = snapLines
		r.nextID, r.nextLine = snapID, snapLine
	}
	return err
}

func (tx *memoryTx) Create(ctx context.Context, tr Transfer) (Transfer, error) {
	tx.repo.nextID++
	tr.ID = tx.repo.nextID
	tr.CreatedAt = time.Now().UTC()
	tr.UpdatedAt = tr.CreatedAt
	tx.repo.transfers[tr.ID] = tr
	return tr, nil
}

func (tx *memoryTx) CreateLine(ctx context.Context, line Line) (Line, error) {
	tx.repo.nextLine++
	line.ID = tx.repo.nextLine
	tx.repo.lines[line.TransferID] = append(tx.repo.lines[line.TransferID], line)
	return line, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, companyID, id int64) (Transfer, error) {
	tr, ok := tx.repo.transfers[id]
	if !ok || tr.CompanyID != companyID {
		return Transfer{}, ErrNotFound
	}
	return tr, nil
}

func (tx *memoryTx) Lines(ctx context.Context, transferID int64) ([]Line, error) {
	return tx.repo.lines[transferID], nil
}

func (tx *memoryTx) SetLineActualCost(ctx context.Context, lineID int64, cost float64) error {
	for id, lines := range tx.repo.lines {
		for i := range lines {
			if lines[i].ID == lineID {
				lines[i].ActualCost = cost
				tx.repo.lines[id] = lines
				return nil
			}
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) MarkCompleted(ctx context.Context, companyID, id, actorID int64) error {
	tr, ok := tx.repo.transfers[id]
	if !ok {
		return ErrNotFound
	}
	tr.Status = StatusCompleted
	tr.CompletedBy = actorID
	tr.CompletedAt = time.Now().UTC()
	tx.repo.transfers[id] = tr
	return nil
}

func (tx *memoryTx) Stock() stock.Tx {
	return tx.repo.stock
}

func (r *memoryRepo) Get(ctx context.Context, companyID, id int64) (Transfer, error) {
	tr, ok := r.transfers[id]
	if !ok || tr.CompanyID != companyID {
		return Transfer{}, ErrNotFound
	}
	tr.Lines = append([]Line(nil), r.lines[id]...)
	return tr, nil
}

func (r *memoryRepo) List(ctx context.Context, companyID int64, filter ListFilter) ([]Transfer, int, error) {
	result := []Transfer{}
	for _, tr := range r.transfers {
		if tr.CompanyID == companyID {
			result = append(result, tr)
		}
	}
	return result, len(result), nil
}

func seedService(t *testing.T) (*memoryRepo, *Service) {
	t.Helper()
	repo := newMemoryRepo()
	repo.stock.SeedItem(stock.ItemInfo{ID: 10, ItemNumber: "FLT-001", Unit: "pcs", UnitCost: 3})
	repo.stock.SeedItem(stock.ItemInfo{ID: 11, ItemNumber: "BLT-002", Unit: "pcs", UnitCost: 1})
	repo.stock.SeedLocation(stock.Location{
		CompanyID: companyID, ItemID: 10, WarehouseID: sourceID,
		OnHand: 100, AverageCost: 2, LastCost: 2,
	})
	return repo, NewService(repo, nil, nil)
}

func sourceLoc(repo *memoryRepo, itemID int64) stock.Location {
	return repo.stock.Location(companyID, itemID, stock.LocationRef{WarehouseID: sourceID})
}

func destLoc(repo *memoryRepo, itemID int64) stock.Location {
	return repo.stock.Location(companyID, itemID, stock.LocationRef{WarehouseID: destID})
}

func TestCreateDraftMovesNothing(t *testing.T) {
	repo, svc := seedService(t)

	tr, err := svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, SourceID: sourceID, DestWarehouse: destID,
		Lines:   []LineInput{{ItemID: 10, Quantity: 30}},
		ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, tr.Status)
	require.Contains(t, tr.Number, "TRF-")
	require.Len(t, tr.Lines, 1)

	require.InDelta(t, 100, sourceLoc(repo, 10).OnHand, 0.0001)
	require.Empty(t, repo.stock.Entries)
}

func TestCreateValidation(t *testing.T) {
	_, svc := seedService(t)

	_, err := svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, SourceID: sourceID, DestWarehouse: destID,
	})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, SourceID: sourceID, DestWarehouse: sourceID,
		Lines: []LineInput{{ItemID: 10, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, SourceID: sourceID, DestWarehouse: destID, DestDevice: 100,
		Lines: []LineInput{{ItemID: 10, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompleteMovesStockAndBalancesLedger(t *testing.T) {
	repo, svc := seedService(t)

	tr, err := svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, SourceID: sourceID, DestWarehouse: destID,
		Lines:   []LineInput{{ItemID: 10, Quantity: 30}},
		ActorID: actorID,
	})
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), companyID, tr.ID, actorID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.InDelta(t, 2, completed.Lines[0].ActualCost, 0.0001)

	src := sourceLoc(repo, 10)
	dst := destLoc(repo, 10)
	require.InDelta(t, 70, src.OnHand, 0.0001)
	require.InDelta(t, 30, dst.OnHand, 0.0001)
	// The cost follows the inventory: the destination adopts the source's
	// average, not a re-priced value.
	require.InDelta(t, 2, dst.AverageCost, 0.0001)

	var out, in *stock.LedgerEntry
	for i := range repo.stock.Entries {
		e := &repo.stock.Entries[i]
		switch e.Type {
		case stock.TransactionTypeTransferOut:
			out = e
		case stock.TransactionTypeTransferIn:
			in = e
		}
	}
	require.NotNil(t, out)
	require.NotNil(t, in)
	require.Equal(t, tr.ID, out.TransferID)
	require.Equal(t, tr.ID, in.TransferID)
	require.InDelta(t, -30, out.Quantity, 0.0001)
	require.InDelta(t, 30, in.Quantity, 0.0001)
	require.InDelta(t, 0, out.Quantity+in.Quantity, 0.0001)
}

func TestCompleteIsAllOrNothing(t *testing.T) {
	repo, svc := seedService(t)

	// Second line has no stock at the source: the whole transfer must fail
	// with nothing moved.
	tr, err := svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, SourceID: sourceID, DestWarehouse: destID,
		Lines:   []LineInput{{ItemID: 10, Quantity: 30}, {ItemID: 11, Quantity: 5}},
		ActorID: actorID,
	})
	require.NoError(t, err)
	entriesBefore := len(repo.stock.Entries)

	_, err = svc.Complete(context.Background(), companyID, tr.ID, actorID)
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(11), insufficient.ItemID)

	require.InDelta(t, 100, sourceLoc(repo, 10).OnHand, 0.0001)
	require.InDelta(t, 0, destLoc(repo, 10).OnHand, 0.0001)
	require.Len(t, repo.stock.Entries, entriesBefore)

	reloaded, err := svc.Get(context.Background(), companyID, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, reloaded.Status)
}

func TestCompleteTwiceFails(t *testing.T) {
	_, svc := seedService(t)

	tr, err := svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, SourceID: sourceID, DestWarehouse: destID,
		Lines:   []LineInput{{ItemID: 10, Quantity: 10}},
		ActorID: actorID,
	})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), companyID, tr.ID, actorID)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), companyID, tr.ID, actorID)
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestCompleteToDeviceDestination(t *testing.T) {
	repo, svc := seedService(t)
	repo.stock.SeedDevice(100, destID)

	tr, err := svc.Create(context.Background(), CreateInput{
		CompanyID: companyID, SourceID: sourceID, DestDevice: 100,
		Lines:   []LineInput{{ItemID: 10, Quantity: 8}},
		ActorID: actorID,
	})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), companyID, tr.ID, actorID)
	require.NoError(t, err)

	dev := repo.stock.Location(companyID, 10, stock.LocationRef{DeviceID: 100})
	require.InDelta(t, 8, dev.OnHand, 0.0001)
	require.InDelta(t, 2, dev.AverageCost, 0.0001)
	require.InDelta(t, 92, sourceLoc(repo, 10).OnHand, 0.0001)
}
