package warehouses

import (
	"context"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, companyID, id)
}

// Main returns the company's main warehouse, the default destination for
// received goods.
func (s *Service) Main(ctx context.Context, companyID int64) (Warehouse, error) {
	return s.repo.GetMain(ctx, companyID)
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if err := s.validate(warehouse); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, warehouse)
}

func (s *Service) Update(ctx context.Context, warehouse Warehouse) error {
	if warehouse.ID <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(warehouse); err != nil {
		return err
	}
	return s.repo.Update(ctx, warehouse)
}

func (s *Service) SetMain(ctx context.Context, companyID, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.SetMain(ctx, companyID, id)
}

func (s *Service) Deactivate(ctx context.Context, companyID, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, companyID, id)
}
