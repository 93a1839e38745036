package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/pkg/database"
	"github.com/redis/go-redis/v9"
)

// ErrDeviceLocked is returned when another sync already holds the device
var ErrDeviceLocked = errors.New("device sync already in progress")

// releaseScript deletes the lock only if it is still owned by the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDeviceLocker implements DeviceLocker with an expiring Redis lease per device
type RedisDeviceLocker struct {
	redis *database.Redis
	ttl   time.Duration
}

// NewRedisDeviceLocker creates a locker whose leases expire after ttl
func NewRedisDeviceLocker(redis *database.Redis, ttl time.Duration) *RedisDeviceLocker {
	return &RedisDeviceLocker{redis: redis, ttl: ttl}
}

func lockKey(deviceID string) string {
	return fmt.Sprintf("sync:lock:%s", deviceID)
}

// Lock acquires the device lease. The returned unlock releases it only while still owned.
func (l *RedisDeviceLocker) Lock(ctx context.Context, deviceID string) (func(context.Context) error, error) {
	key := lockKey(deviceID)
	owner := uuid.New().String()

	acquired, err := l.redis.Client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire device lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrDeviceLocked)
	}

	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.redis.Client, []string{key}, owner).Err(); err != nil {
			return fmt.Errorf("failed to release device lock: %w", err)
		}
		return nil
	}
	return unlock, nil
}

// SyncLocked runs SyncDeviceData while holding the device lock.
// ErrDeviceLocked is returned without syncing when the lock is held elsewhere.
func SyncLocked(ctx context.Context, locker DeviceLocker, svc SyncService, deviceID string, opts domain.SyncOptions) (domain.SyncResult, error) {
	unlock, err := locker.Lock(ctx, deviceID)
	if err != nil {
		return domain.SyncResult{}, err
	}
	defer func() { _ = unlock(context.WithoutCancel(ctx)) }()

	return svc.SyncDeviceData(ctx, deviceID, opts), nil
}
