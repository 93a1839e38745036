package main

import (
	"context"
	"fmt"

	"github.com/prperemyshlev/wearable-sync/internal/app"
	"github.com/prperemyshlev/wearable-sync/internal/config"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/service"
)

type batchSyncer interface {
	SyncActiveDevices(ctx context.Context, concurrency int) ([]domain.SyncResult, error)
}

// runtime is what the commands need from the wired engine
type runtime struct {
	sync             service.SyncService
	batch            batchSyncer
	locker           service.DeviceLocker
	batchConcurrency int
	close            func(context.Context) error
}

type opener func(ctx context.Context) (*runtime, error)

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	infra, err := app.NewInfrastructure(ctx, *cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize infrastructure: %w", err)
	}

	services, err := app.NewServices(infra, cfg)
	if err != nil {
		_ = infra.Shutdown(ctx)
		return nil, err
	}

	return &runtime{
		sync:             services.Sync,
		batch:            services.Batch,
		locker:           services.Locker,
		batchConcurrency: cfg.Sync.BatchConcurrency,
		close:            infra.Shutdown,
	}, nil
}
