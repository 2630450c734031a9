package branches

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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Branch, error) {
	if id <= 0 {
		return Branch{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) Create(ctx context.Context, branch Branch) (Branch, error) {
	if err := s.validate(branch); err != nil {
		return Branch{}, err
	}
	return s.repo.Create(ctx, branch)
}

func (s *Service) Update(ctx context.Context, branch Branch) error {
	if branch.ID <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(branch); err != nil {
		return err
	}
	return s.repo.Update(ctx, branch)
}

func (s *Service) Deactivate(ctx context.Context, companyID, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, companyID, id)
}
