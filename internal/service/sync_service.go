package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/aggregator"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/events"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/internal/vendor"
	"github.com/prperemyshlev/wearable-sync/pkg/observability"
	"go.uber.org/zap"
)

// syncService implements SyncService interface
type syncService struct {
	store        DeviceStore
	vendors      *vendor.Registry
	publisher    events.Publisher
	recorder     MetricsRecorder
	logger       *zap.Logger
	validator    *utils.Validator
	aggregator   *aggregator.Aggregator
	syncInterval time.Duration
	now          func() time.Time
}

// NewSyncService creates a new sync service.
// A nil publisher or recorder disables event publishing or instrumentation.
func NewSyncService(
	store DeviceStore,
	vendors *vendor.Registry,
	publisher events.Publisher,
	recorder MetricsRecorder,
	logger *zap.Logger,
	syncInterval time.Duration,
) SyncService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &syncService{
		store:        store,
		vendors:      vendors,
		publisher:    publisher,
		recorder:     recorder,
		logger:       logger,
		validator:    utils.NewValidator(),
		aggregator:   aggregator.New(),
		syncInterval: syncInterval,
		now:          time.Now,
	}
}

// RegisterDevice validates the device, exchanges its identity for vendor credentials
// and stores it as pending
func (s *syncService) RegisterDevice(ctx context.Context, device domain.WearableDevice) (*domain.WearableDevice, error) {
	if err := s.validator.ValidateDevice(device).Err("device"); err != nil {
		return nil, err
	}

	integration, err := s.integrationFor(device.Type)
	if err != nil {
		return nil, err
	}

	creds, err := integration.Register(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("failed to register device with %s: %w", integration.Vendor(), err)
	}

	registered := device.WithCredentials(creds)
	registered.SyncStatus = domain.SyncStatusPending

	if err := s.store.SaveDevice(ctx, &registered); err != nil {
		return nil, fmt.Errorf("failed to save device: %w", err)
	}

	s.logger.Info("Device registered",
		zap.String("device_id", registered.ID),
		zap.String("user_id", registered.UserID),
		zap.String("vendor", integration.Vendor()),
	)

	return &registered, nil
}

// GetDevice retrieves a device by ID
func (s *syncService) GetDevice(ctx context.Context, deviceID string) (*domain.WearableDevice, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrDeviceNotFound, deviceID, err)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

// SyncDeviceData pulls, validates and stores the device's vendor data.
// Failures are reported in the result, never returned or panicked.
func (s *syncService) SyncDeviceData(ctx context.Context, deviceID string, opts domain.SyncOptions) domain.SyncResult {
	started := s.now()
	result := domain.SyncResult{DeviceID: deviceID, SyncedAt: started}

	device, err := s.GetDevice(ctx, deviceID)
	if err != nil {
		result.ErrorMessage = err.Error()
		s.logger.Warn("Device sync rejected", zap.String("device_id", deviceID), zap.Error(err))
		return result
	}

	if !device.IsActive {
		result.ErrorMessage = ErrDeviceInactive.Error()
		s.logger.Warn("Device sync rejected", zap.String("device_id", deviceID), zap.Error(ErrDeviceInactive))
		return result
	}

	vendorName := string(device.Type)
	if integration, ok := s.vendors.Lookup(device.Type); ok {
		vendorName = integration.Vendor()
	}

	if _, err := s.store.UpdateDeviceStatus(ctx, deviceID, domain.SyncStatusSyncing); err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to mark device syncing: %v", err)
		s.logger.Error("Device sync aborted", zap.String("device_id", deviceID), zap.Error(err))
		s.recorder.RecordSync(ctx, vendorName, observability.OutcomeFailure, 0, s.now().Sub(started))
		return result
	}

	count, syncErr := s.pullAndStore(ctx, *device, opts)

	finished := s.now()
	result.SyncedAt = finished

	status := domain.SyncStatusSynced
	var syncedAt *time.Time
	lastError := ""
	if syncErr != nil {
		status = domain.SyncStatusFailed
		lastError = syncErr.Error()
	} else {
		syncedAt = &finished
	}

	if _, err := s.store.CompleteSync(ctx, deviceID, status, syncedAt, lastError); err != nil && syncErr == nil {
		// metrics are stored but the device is still marked syncing
		syncErr = fmt.Errorf("failed to mark device synced: %w", err)
		status = domain.SyncStatusFailed
		if _, err := s.store.CompleteSync(ctx, deviceID, status, nil, syncErr.Error()); err != nil {
			s.logger.Error("Failed to record sync failure", zap.String("device_id", deviceID), zap.Error(err))
		}
	} else if err != nil {
		s.logger.Error("Failed to record sync failure", zap.String("device_id", deviceID), zap.Error(err))
	}

	if syncErr != nil {
		result.ErrorMessage = syncErr.Error()
		s.logger.Warn("Device sync failed",
			zap.String("device_id", deviceID),
			zap.String("vendor", vendorName),
			zap.Error(syncErr),
		)
		s.recorder.RecordSync(ctx, vendorName, observability.OutcomeFailure, 0, finished.Sub(started))
	} else {
		nextSyncAt := finished.Add(s.syncInterval)
		result.Success = true
		result.MetricsCount = count
		result.NextSyncAt = &nextSyncAt
		s.logger.Info("Device synced",
			zap.String("device_id", deviceID),
			zap.String("vendor", vendorName),
			zap.Int("metrics_count", count),
		)
		s.recorder.RecordSync(ctx, vendorName, observability.OutcomeSuccess, count, finished.Sub(started))
	}

	s.publish(ctx, *device, status, result)

	return result
}

// pullAndStore runs the vendor pipeline and persists the batch only if every metric is valid
func (s *syncService) pullAndStore(ctx context.Context, device domain.WearableDevice, opts domain.SyncOptions) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			count = 0
			err = fmt.Errorf("%w: %v", ErrSyncPanic, r)
		}
	}()

	integration, err := s.integrationFor(device.Type)
	if err != nil {
		return 0, err
	}

	pulled, err := integration.PullAndNormalize(ctx, device, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to pull %s data: %w", integration.Vendor(), err)
	}

	metrics := make([]domain.HealthMetric, 0, len(pulled))
	for _, m := range pulled {
		if opts.Wants(m.Type) {
			metrics = append(metrics, m)
		}
	}

	for i, m := range metrics {
		if err := s.validator.ValidateMetric(m).Err("metric"); err != nil {
			return 0, fmt.Errorf("metric %d (%s): %w", i, m.Type, err)
		}
	}

	if err := s.store.SaveMetrics(ctx, metrics); err != nil {
		return 0, fmt.Errorf("failed to save metrics: %w", err)
	}

	return len(metrics), nil
}

func (s *syncService) publish(ctx context.Context, device domain.WearableDevice, status domain.SyncStatus, result domain.SyncResult) {
	event := events.SyncCompleted{
		DeviceID:     device.ID,
		UserID:       device.UserID,
		DeviceType:   string(device.Type),
		Status:       string(status),
		Success:      result.Success,
		MetricsCount: result.MetricsCount,
		ErrorMessage: result.ErrorMessage,
		SyncedAt:     result.SyncedAt,
		NextSyncAt:   result.NextSyncAt,
	}

	if err := s.publisher.PublishSyncCompleted(ctx, event); err != nil {
		s.logger.Warn("Failed to publish sync event", zap.String("device_id", device.ID), zap.Error(err))
	}
}

// AggregateMetrics computes the daily aggregate of metricType for the UTC calendar day of date
func (s *syncService) AggregateMetrics(ctx context.Context, deviceID string, date time.Time, metricType domain.MetricType) (*domain.HealthMetric, error) {
	if !metricType.IsValid() {
		return nil, &utils.ValidationError{
			Subject: "aggregation",
			Errors:  []string{fmt.Sprintf("Invalid metric type: %s", metricType)},
		}
	}

	if _, err := s.GetDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	start := aggregator.StartOfDay(date.UTC())
	end := start.Add(24 * time.Hour)

	metrics, err := s.store.GetDeviceMetrics(ctx, deviceID, start, end, []domain.MetricType{metricType})
	if err != nil {
		return nil, fmt.Errorf("failed to get device metrics: %w", err)
	}

	daily, err := s.aggregator.AggregateDaily(metrics, metricType)
	if err != nil {
		return nil, err
	}

	return &daily, nil
}

// RefreshDeviceToken exchanges the device's refresh token for a new credential bundle
func (s *syncService) RefreshDeviceToken(ctx context.Context, deviceID string) (*domain.WearableDevice, error) {
	device, err := s.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if device.RefreshToken == "" {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrNoRefreshToken)
	}

	integration, err := s.integrationFor(device.Type)
	if err != nil {
		return nil, err
	}

	creds, err := integration.RefreshToken(ctx, *device)
	if err != nil {
		s.recorder.RecordTokenRefresh(ctx, integration.Vendor(), observability.OutcomeFailure)
		return nil, fmt.Errorf("failed to refresh %s token: %w", integration.Vendor(), err)
	}

	refreshed := device.WithCredentials(creds)
	if err := s.store.UpdateCredentials(ctx, &refreshed); err != nil {
		s.recorder.RecordTokenRefresh(ctx, integration.Vendor(), observability.OutcomeFailure)
		return nil, fmt.Errorf("failed to store refreshed credentials: %w", err)
	}

	s.recorder.RecordTokenRefresh(ctx, integration.Vendor(), observability.OutcomeSuccess)
	s.logger.Info("Device token refreshed",
		zap.String("device_id", deviceID),
		zap.String("vendor", integration.Vendor()),
		zap.Bool("rotated", creds.RefreshToken != ""),
	)

	return &refreshed, nil
}

// CircuitBreakerStates reports the breaker state of every vendor client
func (s *syncService) CircuitBreakerStates() map[string]string {
	return s.vendors.CircuitBreakerStates()
}

func (s *syncService) integrationFor(deviceType domain.DeviceType) (vendor.Integration, error) {
	integration, ok := s.vendors.Lookup(deviceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDeviceType, deviceType)
	}
	return integration, nil
}
