package app

import (
	"fmt"

	"github.com/prperemyshlev/wearable-sync/internal/config"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/normalizer"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
	"github.com/prperemyshlev/wearable-sync/internal/service"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/internal/vendor"
	"github.com/prperemyshlev/wearable-sync/pkg/apiclient"
	"github.com/prperemyshlev/wearable-sync/pkg/observability"
)

// Services is the sync engine wired against the infrastructure.
// The HTTP server and the syncctl command share it.
type Services struct {
	Store       *repository.Store
	Sync        service.SyncService
	Batch       *service.BatchSyncer
	Locker      *service.RedisDeviceLocker
	RateLimiter *service.RateLimiter
}

func NewServices(infra Infrastructure, cfg *config.Config) (*Services, error) {
	cipher, err := utils.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cipher: %w", err)
	}

	syncMetrics, err := observability.NewSyncMetrics(infra.MeterProvider().Meter(serviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}

	repos := repository.NewRepositories(infra.Postgres(), cipher)
	store := repository.NewStore(repos)
	locker := service.NewRedisDeviceLocker(infra.Redis(), cfg.Sync.LockTTL.Duration)

	syncService := service.NewSyncService(
		store,
		newVendorRegistry(cfg),
		infra.Publisher(),
		syncMetrics,
		infra.Logger(),
		cfg.Sync.Interval.Duration,
	)

	return &Services{
		Store:       store,
		Sync:        syncService,
		Batch:       service.NewBatchSyncer(store, syncService, locker, infra.Logger()),
		Locker:      locker,
		RateLimiter: service.NewRateLimiter(infra.Redis()),
	}, nil
}

// newVendorRegistry binds one breaker-guarded client per vendor.
// Garmin and Samsung devices have no integration and fail fast.
func newVendorRegistry(cfg *config.Config) *vendor.Registry {
	registry := vendor.NewRegistry()

	apple := vendor.NewApple(apiclient.New(clientConfig(normalizer.SourceApple, cfg.Apple)), cfg.Apple.ClientID)
	registry.Register(domain.DeviceTypeAppleWatch, apple)

	fitbit := vendor.NewFitbit(apiclient.New(clientConfig(normalizer.SourceFitbit, cfg.Fitbit)), cfg.Fitbit.ClientID)
	registry.Register(domain.DeviceTypeFitbit, fitbit)

	return registry
}

func clientConfig(name string, v config.VendorConfig) apiclient.Config {
	return apiclient.Config{
		Name:             name,
		BaseURL:          v.BaseURL,
		Timeout:          v.Timeout.Duration,
		RetryAttempts:    v.RetryAttempts,
		FailureThreshold: v.FailureThreshold,
		RecoveryTimeout:  v.RecoveryTimeout.Duration,
		MonitoringPeriod: v.MonitoringPeriod.Duration,
	}
}
