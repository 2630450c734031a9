package devices

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

type memoryRepo struct {
	devices map[int64]Device
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{devices: make(map[int64]Device)}
}

func (r *memoryRepo) List(ctx context.Context, filters shared.ListFilters) ([]Device, int, error) {
	result := []Device{}
	for _, d := range r.devices {
		if d.CompanyID == filters.CompanyID {
			result = append(result, d)
		}
	}
	return result, len(result), nil
}

func (r *memoryRepo) Get(ctx context.Context, companyID, id int64) (Device, error) {
	d, ok := r.devices[id]
	if !ok || d.CompanyID != companyID {
		return Device{}, shared.ErrNotFound
	}
	return d, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, companyID int64, code string) (Device, error) {
	for _, d := range r.devices {
		if d.CompanyID == companyID && d.Code == code {
			return d, nil
		}
	}
	return Device{}, shared.ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, device Device, accessKeyHash string) (Device, error) {
	r.nextID++
	device.ID = r.nextID
	device.IsActive = true
	device.accessKeyHash = accessKeyHash
	r.devices[device.ID] = device
	return device, nil
}

func (r *memoryRepo) Update(ctx context.Context, device Device) error {
	existing, ok := r.devices[device.ID]
	if !ok {
		return shared.ErrNotFound
	}
	device.accessKeyHash = existing.accessKeyHash
	r.devices[device.ID] = device
	return nil
}

func (r *memoryRepo) UpdateAccessKey(ctx context.Context, companyID, id int64, accessKeyHash string) error {
	d, ok := r.devices[id]
	if !ok || d.CompanyID != companyID {
		return shared.ErrNotFound
	}
	d.accessKeyHash = accessKeyHash
	r.devices[id] = d
	return nil
}

func (r *memoryRepo) Deactivate(ctx context.Context, companyID, id int64) error {
	d, ok := r.devices[id]
	if !ok || d.CompanyID != companyID {
		return shared.ErrNotFound
	}
	d.IsActive = false
	r.devices[id] = d
	return nil
}

func TestAccessKeyRoundTrip(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	device, key, err := svc.Create(ctx, Device{CompanyID: 1, Code: "HHD-01", Name: "Crew A", WarehouseID: 5})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	verified, err := svc.VerifyAccessKey(ctx, 1, "HHD-01", key)
	require.NoError(t, err)
	require.Equal(t, device.ID, verified.ID)

	_, err = svc.VerifyAccessKey(ctx, 1, "HHD-01", "wrong-key")
	require.ErrorIs(t, err, ErrBadAccessKey)
}

func TestRotateAccessKeyInvalidatesOldKey(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, oldKey, err := svc.Create(ctx, Device{CompanyID: 1, Code: "HHD-02", Name: "Crew B"})
	require.NoError(t, err)

	newKey, err := svc.RotateAccessKey(ctx, 1, 1)
	require.NoError(t, err)
	require.NotEqual(t, oldKey, newKey)

	_, err = svc.VerifyAccessKey(ctx, 1, "HHD-02", oldKey)
	require.ErrorIs(t, err, ErrBadAccessKey)
	_, err = svc.VerifyAccessKey(ctx, 1, "HHD-02", newKey)
	require.NoError(t, err)
}

func TestVerifyRejectsInactiveDevice(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, key, err := svc.Create(ctx, Device{CompanyID: 1, Code: "HHD-03", Name: "Crew C"})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, 1, 1))

	_, err = svc.VerifyAccessKey(ctx, 1, "HHD-03", key)
	require.ErrorIs(t, err, ErrBadAccessKey)
}
