package devices

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

// ErrBadAccessKey indicates a failed device access key check.
var ErrBadAccessKey = errors.New("devices: invalid access key")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Device, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Device, error) {
	if id <= 0 {
		return Device{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, companyID, id)
}

// Create registers a device and returns it together with the generated
// access key. The key is only ever available here; the store keeps a bcrypt
// hash.
func (s *Service) Create(ctx context.Context, device Device) (Device, string, error) {
	if err := s.validate(device); err != nil {
		return Device{}, "", err
	}
	key, hash, err := newAccessKey()
	if err != nil {
		return Device{}, "", err
	}
	created, err := s.repo.Create(ctx, device, hash)
	if err != nil {
		return Device{}, "", err
	}
	return created, key, nil
}

func (s *Service) Update(ctx context.Context, device Device) error {
	if device.ID <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(device); err != nil {
		return err
	}
	return s.repo.Update(ctx, device)
}

// RotateAccessKey replaces the device's access key and returns the new key.
func (s *Service) RotateAccessKey(ctx context.Context, companyID, id int64) (string, error) {
	if id <= 0 {
		return "", shared.ErrInvalidID
	}
	key, hash, err := newAccessKey()
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateAccessKey(ctx, companyID, id, hash); err != nil {
		return "", err
	}
	return key, nil
}

// VerifyAccessKey authenticates a device by code and access key.
func (s *Service) VerifyAccessKey(ctx context.Context, companyID int64, code, key string) (Device, error) {
	device, err := s.repo.GetByCode(ctx, companyID, code)
	if err != nil {
		return Device{}, err
	}
	if !device.IsActive || device.accessKeyHash == "" {
		return Device{}, ErrBadAccessKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(device.accessKeyHash), []byte(key)); err != nil {
		return Device{}, ErrBadAccessKey
	}
	return device, nil
}

func (s *Service) Deactivate(ctx context.Context, companyID, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, companyID, id)
}

func newAccessKey() (string, string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("devices: generate access key: %w", err)
	}
	key := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return key, string(hash), nil
}
