package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchSyncer syncs every active device, each under its device lock
type BatchSyncer struct {
	store  DeviceStore
	sync   SyncService
	locker DeviceLocker
	logger *zap.Logger
}

// NewBatchSyncer creates a new batch syncer
func NewBatchSyncer(store DeviceStore, sync SyncService, locker DeviceLocker, logger *zap.Logger) *BatchSyncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchSyncer{store: store, sync: sync, locker: locker, logger: logger}
}

// SyncActiveDevices runs at most concurrency syncs at once and returns one result per active
// device, in listing order. Devices locked by another sync get a failed result.
func (b *BatchSyncer) SyncActiveDevices(ctx context.Context, concurrency int) ([]domain.SyncResult, error) {
	devices, err := b.store.ListActiveDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active devices: %w", err)
	}

	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]domain.SyncResult, len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, device := range devices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			result, err := SyncLocked(gctx, b.locker, b.sync, device.ID, domain.SyncOptions{})
			if err != nil {
				if !errors.Is(err, ErrDeviceLocked) {
					b.logger.Warn("Batch sync skipped device", zap.String("device_id", device.ID), zap.Error(err))
				}
				result = domain.SyncResult{DeviceID: device.ID, ErrorMessage: err.Error()}
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	b.logger.Info("Batch sync finished",
		zap.Int("devices", len(devices)),
		zap.Int("succeeded", succeeded),
	)

	return results, nil
}
