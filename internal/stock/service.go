package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aegisfm/aegisfm/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetLocation(ctx context.Context, companyID, itemID int64, ref LocationRef) (Location, error)
	ItemLocations(ctx context.Context, companyID, itemID int64) ([]Location, error)
	DeviceWarehouse(ctx context.Context, companyID, deviceID int64) (int64, error)
	ListLedger(ctx context.Context, companyID int64, filter LedgerFilter) ([]LedgerEntry, int, error)
	StockByLocation(ctx context.Context, companyID int64, ref LocationRef) ([]View, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MovementRecorder counts posted movements for observability.
type MovementRecorder interface {
	RecordMovement(txType string)
}

// Service coordinates stock reads and manual adjustments. Invoice receiving,
// work order claims and transfers post through their own services but share
// this package's engine.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	views       *ViewCache
	metrics     MovementRecorder
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, views *ViewCache, metrics MovementRecorder) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, views: views, metrics: metrics}
}

// AdjustInput describes a manual stock correction.
type AdjustInput struct {
	CompanyID      int64
	ItemID         int64
	Location       LocationRef
	Quantity       float64
	UnitCost       float64
	Increase       bool
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// Adjust posts a manual correction as ADJUSTMENT_PLUS or ADJUSTMENT_MINUS.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (LedgerEntry, error) {
	if input.CompanyID == 0 || input.ItemID == 0 {
		return LedgerEntry{}, errors.New("stock: company and item required")
	}
	if !input.Location.Valid() {
		return LedgerEntry{}, ErrInvalidLocation
	}
	if input.Quantity <= 0 {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	mv := Movement{
		CompanyID: input.CompanyID,
		ItemID:    input.ItemID,
		Quantity:  input.Quantity,
		UnitCost:  input.UnitCost,
		Notes:     input.Notes,
		ActorID:   input.ActorID,
	}
	if input.Increase {
		mv.Type = TransactionTypeAdjustmentPlus
		mv.To = input.Location
	} else {
		mv.Type = TransactionTypeAdjustmentMinus
		mv.From = input.Location
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "stock"); err != nil {
			return LedgerEntry{}, err
		}
		insertedKey = true
	}

	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		entry, err = Apply(ctx, tx, mv)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return LedgerEntry{}, err
	}
	s.MovementPosted(ctx, input.CompanyID, string(mv.Type))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: input.CompanyID,
			ActorID:   input.ActorID,
			Action:    fmt.Sprintf("stock:%s", mv.Type),
			Entity:    "stock_ledger",
			EntityID:  entry.TransactionNumber,
			Meta: map[string]any{
				"item_id":      input.ItemID,
				"warehouse_id": input.Location.WarehouseID,
				"device_id":    input.Location.DeviceID,
				"quantity":     input.Quantity,
			},
		})
	}
	return entry, nil
}

// MovementPosted records a posted movement and invalidates cached views.
// Sibling services call it after their own transactions commit.
func (s *Service) MovementPosted(ctx context.Context, companyID int64, txType string) {
	if s.metrics != nil {
		s.metrics.RecordMovement(txType)
	}
	s.views.Bump(ctx, companyID)
}

// ItemStock lists every balance row of an item across locations.
func (s *Service) ItemStock(ctx context.Context, companyID, itemID int64) ([]Location, error) {
	if companyID == 0 || itemID == 0 {
		return nil, errors.New("stock: company and item required")
	}
	return s.repo.ItemLocations(ctx, companyID, itemID)
}

// LocationStock returns the balance row for one item at one location.
func (s *Service) LocationStock(ctx context.Context, companyID, itemID int64, ref LocationRef) (Location, error) {
	if !ref.Valid() {
		return Location{}, ErrInvalidLocation
	}
	return s.repo.GetLocation(ctx, companyID, itemID, ref)
}

// Ledger lists filtered ledger entries, newest first.
func (s *Service) Ledger(ctx context.Context, companyID int64, filter LedgerFilter) ([]LedgerEntry, int, error) {
	if companyID == 0 {
		return nil, 0, shared.ErrNoCompany
	}
	return s.repo.ListLedger(ctx, companyID, filter)
}

// WarehouseStock returns the cached stock view for a warehouse.
func (s *Service) WarehouseStock(ctx context.Context, companyID, warehouseID int64) ([]View, error) {
	if companyID == 0 || warehouseID == 0 {
		return nil, errors.New("stock: company and warehouse required")
	}
	scope := fmt.Sprintf("wh:%d", warehouseID)
	return s.views.Get(ctx, companyID, scope, func(ctx context.Context) ([]View, error) {
		return s.repo.StockByLocation(ctx, companyID, LocationRef{WarehouseID: warehouseID})
	})
}

// DeviceStock returns the cached stock view for a device: the device's own
// rows followed by the rows of its linked warehouse, which back issues when
// the device holds no record of its own.
func (s *Service) DeviceStock(ctx context.Context, companyID, deviceID int64) ([]View, error) {
	if companyID == 0 || deviceID == 0 {
		return nil, errors.New("stock: company and device required")
	}
	scope := fmt.Sprintf("dev:%d", deviceID)
	return s.views.Get(ctx, companyID, scope, func(ctx context.Context) ([]View, error) {
		own, err := s.repo.StockByLocation(ctx, companyID, LocationRef{DeviceID: deviceID})
		if err != nil {
			return nil, err
		}
		warehouseID, err := s.repo.DeviceWarehouse(ctx, companyID, deviceID)
		if err != nil {
			return nil, err
		}
		if warehouseID == 0 {
			return own, nil
		}
		seen := make(map[int64]bool, len(own))
		for _, v := range own {
			seen[v.ItemID] = true
		}
		linked, err := s.repo.StockByLocation(ctx, companyID, LocationRef{WarehouseID: warehouseID})
		if err != nil {
			return nil, err
		}
		for _, v := range linked {
			if !seen[v.ItemID] {
				own = append(own, v)
			}
		}
		return own, nil
	})
}
