package vendors

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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Vendor, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Vendor, error) {
	if id <= 0 {
		return Vendor{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) Create(ctx context.Context, vendor Vendor) (Vendor, error) {
	if err := s.validate(vendor); err != nil {
		return Vendor{}, err
	}
	return s.repo.Create(ctx, vendor)
}

func (s *Service) Update(ctx context.Context, vendor Vendor) error {
	if vendor.ID <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(vendor); err != nil {
		return err
	}
	return s.repo.Update(ctx, vendor)
}

func (s *Service) Deactivate(ctx context.Context, companyID, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, companyID, id)
}
