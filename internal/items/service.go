package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/aegisfm/aegisfm/internal/shared"
	"github.com/aegisfm/aegisfm/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, companyID, id int64) (Item, error)
	ListItems(ctx context.Context, companyID int64, filter ListFilter) ([]Item, int, error)
	UpdateItem(ctx context.Context, item Item) error
	StockSummary(ctx context.Context, companyID, id int64) (onHand, reserved float64, ledgerRows int, err error)
	ListCategories(ctx context.Context, companyID int64) ([]Category, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)
	UpdateCategory(ctx context.Context, category Category) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MovementNotifier is told when item creation posts an opening balance.
type MovementNotifier interface {
	MovementPosted(ctx context.Context, companyID int64, txType string)
}

// Service coordinates the item catalogue.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier MovementNotifier
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, notifier MovementNotifier) *Service {
	return &Service{repo: repo, audit: audit, notifier: notifier}
}

// InitialStockInput seeds an opening balance during item creation.
type InitialStockInput struct {
	WarehouseID int64
	Quantity    float64
	UnitCost    float64
}

// CreateItemInput describes a new catalogue entry.
type CreateItemInput struct {
	CompanyID    int64
	CategoryID   int64
	ItemNumber   string
	Description  string
	Unit         string
	UnitCost     float64
	UnitPrice    float64
	MinimumStock float64
	InitialStock *InitialStockInput
	ActorID      int64
}

// CreateItem inserts the item and, when requested, posts its opening balance
// in the same transaction.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	if input.CompanyID == 0 {
		return Item{}, shared.ErrNoCompany
	}
	if strings.TrimSpace(input.ItemNumber) == "" {
		return Item{}, fmt.Errorf("%w: item number required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Unit) == "" {
		return Item{}, fmt.Errorf("%w: unit required", ErrInvalidInput)
	}
	if input.UnitCost < 0 || input.UnitPrice < 0 || input.MinimumStock < 0 {
		return Item{}, fmt.Errorf("%w: negative amounts", ErrInvalidInput)
	}
	if seed := input.InitialStock; seed != nil {
		if seed.WarehouseID == 0 {
			return Item{}, fmt.Errorf("%w: initial stock requires a warehouse", ErrInvalidInput)
		}
		if seed.Quantity <= 0 {
			return Item{}, fmt.Errorf("%w: initial stock quantity must be positive", ErrInvalidInput)
		}
	}

	var created Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.CreateItem(ctx, Item{
			CompanyID:    input.CompanyID,
			CategoryID:   input.CategoryID,
			ItemNumber:   strings.TrimSpace(input.ItemNumber),
			Description:  input.Description,
			Unit:         input.Unit,
			UnitCost:     input.UnitCost,
			UnitPrice:    input.UnitPrice,
			MinimumStock: input.MinimumStock,
		})
		if err != nil {
			return err
		}
		if seed := input.InitialStock; seed != nil {
			cost := seed.UnitCost
			if cost <= 0 {
				cost = input.UnitCost
			}
			_, err = stock.Apply(ctx, tx.Stock(), stock.Movement{
				CompanyID: input.CompanyID,
				ItemID:    created.ID,
				Type:      stock.TransactionTypeInitialStock,
				Quantity:  seed.Quantity,
				UnitCost:  cost,
				To:        stock.LocationRef{WarehouseID: seed.WarehouseID},
				Notes:     "opening balance",
				ActorID:   input.ActorID,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	if input.InitialStock != nil && s.notifier != nil {
		s.notifier.MovementPosted(ctx, input.CompanyID, string(stock.TransactionTypeInitialStock))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: input.CompanyID,
			ActorID:   input.ActorID,
			Action:    "items:create",
			Entity:    "item",
			EntityID:  created.ItemNumber,
			Meta:      map[string]any{"item_id": created.ID},
		})
	}
	return created, nil
}

// Get loads one item.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Item, error) {
	return s.repo.GetItem(ctx, companyID, id)
}

// List returns filtered items plus the total count.
func (s *Service) List(ctx context.Context, companyID int64, filter ListFilter) ([]Item, int, error) {
	if companyID == 0 {
		return nil, 0, shared.ErrNoCompany
	}
	return s.repo.ListItems(ctx, companyID, filter)
}

// Update persists editable item fields.
func (s *Service) Update(ctx context.Context, item Item) error {
	if item.ID <= 0 {
		return fmt.Errorf("%w: item id required", ErrInvalidInput)
	}
	if strings.TrimSpace(item.Unit) == "" {
		return fmt.Errorf("%w: unit required", ErrInvalidInput)
	}
	if item.UnitCost < 0 || item.UnitPrice < 0 || item.MinimumStock < 0 {
		return fmt.Errorf("%w: negative amounts", ErrInvalidInput)
	}
	return s.repo.UpdateItem(ctx, item)
}

// Delete removes an item that never moved: items holding stock or carrying
// ledger history are refused and should be deactivated instead.
func (s *Service) Delete(ctx context.Context, companyID, id int64, actorID int64) error {
	onHand, reserved, ledgerRows, err := s.repo.StockSummary(ctx, companyID, id)
	if err != nil {
		return err
	}
	if onHand > 0 || reserved > 0 {
		return ErrHasStock
	}
	if ledgerRows > 0 {
		return ErrHasHistory
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteItem(ctx, companyID, id)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: companyID,
			ActorID:   actorID,
			Action:    "items:delete",
			Entity:    "item",
			EntityID:  fmt.Sprintf("%d", id),
		})
	}
	return nil
}

// Categories lists the company's item categories.
func (s *Service) Categories(ctx context.Context, companyID int64) ([]Category, error) {
	if companyID == 0 {
		return nil, shared.ErrNoCompany
	}
	return s.repo.ListCategories(ctx, companyID)
}

// CreateCategory inserts a category.
func (s *Service) CreateCategory(ctx context.Context, category Category) (Category, error) {
	if category.CompanyID == 0 {
		return Category{}, shared.ErrNoCompany
	}
	if strings.TrimSpace(category.Name) == "" {
		return Category{}, fmt.Errorf("%w: category name required", ErrInvalidInput)
	}
	return s.repo.CreateCategory(ctx, category)
}

// UpdateCategory persists category fields.
func (s *Service) UpdateCategory(ctx context.Context, category Category) error {
	if category.ID <= 0 {
		return fmt.Errorf("%w: category id required", ErrInvalidInput)
	}
	if strings.TrimSpace(category.Name) == "" {
		return fmt.Errorf("%w: category name required", ErrInvalidInput)
	}
	return s.repo.UpdateCategory(ctx, category)
}
