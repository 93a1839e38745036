package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// Store exposes the device and metric repositories through the sync service's store contract
type Store struct {
	devices DeviceRepository
	metrics MetricRepository
}

// NewStore creates a store over the given repositories
func NewStore(repos *Repositories) *Store {
	return &Store{devices: repos.Device, metrics: repos.Metric}
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (*domain.WearableDevice, error) {
	return s.devices.GetByID(ctx, deviceID)
}

func (s *Store) UpdateDeviceStatus(ctx context.Context, deviceID string, status domain.SyncStatus) (*domain.WearableDevice, error) {
	return s.devices.UpdateStatus(ctx, deviceID, status)
}

func (s *Store) CompleteSync(ctx context.Context, deviceID string, status domain.SyncStatus, syncedAt *time.Time, lastError string) (*domain.WearableDevice, error) {
	return s.devices.CompleteSync(ctx, deviceID, status, syncedAt, lastError)
}

func (s *Store) GetDeviceMetrics(ctx context.Context, deviceID string, start, end time.Time, types []domain.MetricType) ([]domain.HealthMetric, error) {
	return s.metrics.ListByDevice(ctx, deviceID, start, end, types)
}

func (s *Store) SaveDevice(ctx context.Context, device *domain.WearableDevice) error {
	return s.devices.Save(ctx, device)
}

func (s *Store) UpdateCredentials(ctx context.Context, device *domain.WearableDevice) error {
	return s.devices.UpdateCredentials(ctx, device)
}

func (s *Store) SaveMetrics(ctx context.Context, metrics []domain.HealthMetric) error {
	return s.metrics.SaveBatch(ctx, metrics)
}

func (s *Store) ListActiveDevices(ctx context.Context) ([]*domain.WearableDevice, error) {
	return s.devices.ListActive(ctx)
}
