package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// DeviceRepository defines methods for device operations
type DeviceRepository interface {
	Save(ctx context.Context, device *domain.WearableDevice) error
	GetByID(ctx context.Context, id string) (*domain.WearableDevice, error)
	UpdateStatus(ctx context.Context, id string, status domain.SyncStatus) (*domain.WearableDevice, error)
	CompleteSync(ctx context.Context, id string, status domain.SyncStatus, syncedAt *time.Time, lastError string) (*domain.WearableDevice, error)
	UpdateCredentials(ctx context.Context, device *domain.WearableDevice) error
	ListActive(ctx context.Context) ([]*domain.WearableDevice, error)
}

// MetricRepository defines methods for health metric operations
type MetricRepository interface {
	SaveBatch(ctx context.Context, metrics []domain.HealthMetric) error
	ListByDevice(ctx context.Context, deviceID string, start, end time.Time, types []domain.MetricType) ([]domain.HealthMetric, error)
}
