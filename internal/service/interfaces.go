package service

import (
	"context"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// SyncService defines the device registration, sync, aggregation and token refresh operations.
//
// Callers must serialize SyncDeviceData per device id (see DeviceLocker); the service itself
// holds no per-device lock.
type SyncService interface {
	RegisterDevice(ctx context.Context, device domain.WearableDevice) (*domain.WearableDevice, error)
	GetDevice(ctx context.Context, deviceID string) (*domain.WearableDevice, error)
	SyncDeviceData(ctx context.Context, deviceID string, opts domain.SyncOptions) domain.SyncResult
	AggregateMetrics(ctx context.Context, deviceID string, date time.Time, metricType domain.MetricType) (*domain.HealthMetric, error)
	RefreshDeviceToken(ctx context.Context, deviceID string) (*domain.WearableDevice, error)
	CircuitBreakerStates() map[string]string
}

// DeviceStore is the persistence contract the sync service depends on.
// Lookups of unknown ids fail with an error wrapping repository.ErrNotFound.
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceID string) (*domain.WearableDevice, error)
	UpdateDeviceStatus(ctx context.Context, deviceID string, status domain.SyncStatus) (*domain.WearableDevice, error)
	CompleteSync(ctx context.Context, deviceID string, status domain.SyncStatus, syncedAt *time.Time, lastError string) (*domain.WearableDevice, error)
	GetDeviceMetrics(ctx context.Context, deviceID string, start, end time.Time, types []domain.MetricType) ([]domain.HealthMetric, error)
	SaveDevice(ctx context.Context, device *domain.WearableDevice) error
	UpdateCredentials(ctx context.Context, device *domain.WearableDevice) error
	SaveMetrics(ctx context.Context, metrics []domain.HealthMetric) error
	ListActiveDevices(ctx context.Context) ([]*domain.WearableDevice, error)
}

// MetricsRecorder receives sync and token refresh outcomes
type MetricsRecorder interface {
	RecordSync(ctx context.Context, vendor, outcome string, metricsCount int, elapsed time.Duration)
	RecordTokenRefresh(ctx context.Context, vendor, outcome string)
}

// DeviceLocker grants exclusive sync access to one device at a time.
// Lock fails with ErrDeviceLocked when another holder owns the device.
type DeviceLocker interface {
	Lock(ctx context.Context, deviceID string) (unlock func(context.Context) error, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordSync(context.Context, string, string, int, time.Duration) {}

func (noopRecorder) RecordTokenRefresh(context.Context, string, string) {}
