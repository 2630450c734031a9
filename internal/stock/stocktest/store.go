// Package stocktest provides an in-memory stock store for service tests.
package stocktest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aegisfm/aegisfm/internal/stock"
)

type locationKey struct {
	CompanyID   int64
	ItemID      int64
	WarehouseID int64
	DeviceID    int64
}

// Store implements stock.Tx and the stock repository ports in memory.
// WithTx snapshots state and restores it when the callback fails, so tests
// can assert all-or-nothing behaviour.
type Store struct {
	Items     map[int64]stock.ItemInfo
	Devices   map[int64]int64
	Locations map[locationKey]*stock.Location
	Entries   []stock.LedgerEntry

	sequences map[string]int64
	nextLocID int64
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{
		Items:     make(map[int64]stock.ItemInfo),
		Devices:   make(map[int64]int64),
		Locations: make(map[locationKey]*stock.Location),
		sequences: make(map[string]int64),
	}
}

// SeedItem registers an item.
func (s *Store) SeedItem(info stock.ItemInfo) {
	if info.Unit == "" {
		info.Unit = "pcs"
	}
	info.Active = true
	s.Items[info.ID] = info
}

// SeedDevice links a device to a warehouse; zero leaves it unlinked.
func (s *Store) SeedDevice(deviceID, warehouseID int64) {
	s.Devices[deviceID] = warehouseID
}

// SeedLocation installs a balance row directly.
func (s *Store) SeedLocation(loc stock.Location) {
	s.nextLocID++
	loc.ID = s.nextLocID
	key := locationKey{CompanyID: loc.CompanyID, ItemID: loc.ItemID, WarehouseID: loc.WarehouseID, DeviceID: loc.DeviceID}
	copied := loc
	s.Locations[key] = &copied
}

// Location returns a copy of the balance row, or a zero row when absent.
func (s *Store) Location(companyID, itemID int64, ref stock.LocationRef) stock.Location {
	key := locationKey{CompanyID: companyID, ItemID: itemID, WarehouseID: ref.WarehouseID, DeviceID: ref.DeviceID}
	if loc, ok := s.Locations[key]; ok {
		return *loc
	}
	return stock.Location{}
}

// WithTx runs fn against the store, restoring the snapshot on error.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, stock.Tx) error) error {
	snapLocations := make(map[locationKey]*stock.Location, len(s.Locations))
	for k, v := range s.Locations {
		copied := *v
		snapLocations[k] = &copied
	}
	snapEntries := append([]stock.LedgerEntry(nil), s.Entries...)
	snapSequences := make(map[string]int64, len(s.sequences))
	for k, v := range s.sequences {
		snapSequences[k] = v
	}
	snapNext := s.nextLocID

	if err := fn(ctx, s); err != nil {
		s.Locations = snapLocations
		s.Entries = snapEntries
		s.sequences = snapSequences
		s.nextLocID = snapNext
		return err
	}
	return nil
}

func (s *Store) LocationForUpdate(ctx context.Context, companyID, itemID int64, ref stock.LocationRef) (stock.Location, error) {
	key := locationKey{CompanyID: companyID, ItemID: itemID, WarehouseID: ref.WarehouseID, DeviceID: ref.DeviceID}
	if loc, ok := s.Locations[key]; ok {
		return *loc, nil
	}
	return stock.Location{}, stock.ErrNoStockRecord
}

func (s *Store) CreateLocation(ctx context.Context, companyID, itemID int64, ref stock.LocationRef) (stock.Location, error) {
	s.nextLocID++
	loc := stock.Location{
		ID:          s.nextLocID,
		CompanyID:   companyID,
		ItemID:      itemID,
		WarehouseID: ref.WarehouseID,
		DeviceID:    ref.DeviceID,
		UpdatedAt:   time.Now().UTC(),
	}
	key := locationKey{CompanyID: companyID, ItemID: itemID, WarehouseID: ref.WarehouseID, DeviceID: ref.DeviceID}
	copied := loc
	s.Locations[key] = &copied
	return loc, nil
}

func (s *Store) UpdateLocation(ctx context.Context, loc stock.Location) error {
	for key, existing := range s.Locations {
		if existing.ID == loc.ID {
			loc.UpdatedAt = time.Now().UTC()
			copied := loc
			s.Locations[key] = &copied
			return nil
		}
	}
	return stock.ErrNoStockRecord
}

func (s *Store) InsertEntry(ctx context.Context, entry stock.LedgerEntry) (stock.LedgerEntry, error) {
	entry.ID = int64(len(s.Entries) + 1)
	entry.CreatedAt = time.Now().UTC()
	s.Entries = append(s.Entries, entry)
	return entry, nil
}

func (s *Store) NextTransactionNumber(ctx context.Context, companyID int64, prefix string) (string, error) {
	period := time.Now().UTC().Format("200601")
	key := fmt.Sprintf("%d:%s:%s", companyID, prefix, period)
	s.sequences[key]++
	return fmt.Sprintf("%s-%s-%05d", prefix, period, s.sequences[key]), nil
}

func (s *Store) DeviceWarehouse(ctx context.Context, companyID, deviceID int64) (int64, error) {
	warehouseID, ok := s.Devices[deviceID]
	if !ok {
		return 0, fmt.Errorf("stocktest: device %d not seeded", deviceID)
	}
	return warehouseID, nil
}

func (s *Store) ItemInfo(ctx context.Context, companyID, itemID int64) (stock.ItemInfo, error) {
	info, ok := s.Items[itemID]
	if !ok {
		return stock.ItemInfo{}, fmt.Errorf("stocktest: item %d not seeded", itemID)
	}
	return info, nil
}

func (s *Store) EntriesForWorkOrder(ctx context.Context, companyID, workOrderID int64) ([]stock.LedgerEntry, error) {
	entries := []stock.LedgerEntry{}
	for _, e := range s.Entries {
		if e.CompanyID == companyID && e.WorkOrderID == workOrderID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *Store) GetLocation(ctx context.Context, companyID, itemID int64, ref stock.LocationRef) (stock.Location, error) {
	return s.LocationForUpdate(ctx, companyID, itemID, ref)
}

func (s *Store) ItemLocations(ctx context.Context, companyID, itemID int64) ([]stock.Location, error) {
	locs := []stock.Location{}
	for _, loc := range s.Locations {
		if loc.CompanyID == companyID && loc.ItemID == itemID {
			locs = append(locs, *loc)
		}
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].ID < locs[j].ID })
	return locs, nil
}

func (s *Store) ListLedger(ctx context.Context, companyID int64, filter stock.LedgerFilter) ([]stock.LedgerEntry, int, error) {
	matched := []stock.LedgerEntry{}
	for _, e := range s.Entries {
		if e.CompanyID != companyID {
			continue
		}
		if filter.ItemID != 0 && e.ItemID != filter.ItemID {
			continue
		}
		if filter.WorkOrderID != 0 && e.WorkOrderID != filter.WorkOrderID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) StockByLocation(ctx context.Context, companyID int64, ref stock.LocationRef) ([]stock.View, error) {
	views := []stock.View{}
	for _, loc := range s.Locations {
		if loc.CompanyID != companyID || loc.WarehouseID != ref.WarehouseID || loc.DeviceID != ref.DeviceID {
			continue
		}
		item := s.Items[loc.ItemID]
		views = append(views, stock.View{
			ItemID:      loc.ItemID,
			ItemNumber:  item.ItemNumber,
			Description: item.Description,
			Unit:        item.Unit,
			WarehouseID: loc.WarehouseID,
			DeviceID:    loc.DeviceID,
			OnHand:      loc.OnHand,
			Reserved:    loc.Reserved,
			Available:   loc.OnHand - loc.Reserved,
			AverageCost: loc.AverageCost,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ItemNumber < views[j].ItemNumber })
	return views, nil
}
