package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSync struct {
	syncOpts    domain.SyncOptions
	syncResult  domain.SyncResult
	aggDate     time.Time
	aggType     domain.MetricType
	refreshErr  error
	breakers    map[string]string
	syncedCalls int
}

func (s *stubSync) RegisterDevice(context.Context, domain.WearableDevice) (*domain.WearableDevice, error) {
	return nil, errors.New("not used")
}

func (s *stubSync) GetDevice(context.Context, string) (*domain.WearableDevice, error) {
	return nil, errors.New("not used")
}

func (s *stubSync) SyncDeviceData(_ context.Context, deviceID string, opts domain.SyncOptions) domain.SyncResult {
	s.syncedCalls++
	s.syncOpts = opts
	result := s.syncResult
	result.DeviceID = deviceID
	return result
}

func (s *stubSync) AggregateMetrics(_ context.Context, deviceID string, date time.Time, metricType domain.MetricType) (*domain.HealthMetric, error) {
	s.aggDate = date
	s.aggType = metricType
	return &domain.HealthMetric{DeviceID: deviceID, Type: metricType, Value: 8500, Unit: "steps", Timestamp: date}, nil
}

func (s *stubSync) RefreshDeviceToken(_ context.Context, deviceID string) (*domain.WearableDevice, error) {
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &domain.WearableDevice{ID: deviceID}, nil
}

func (s *stubSync) CircuitBreakerStates() map[string]string {
	return s.breakers
}

type stubBatch struct {
	concurrency int
}

func (b *stubBatch) SyncActiveDevices(_ context.Context, concurrency int) ([]domain.SyncResult, error) {
	b.concurrency = concurrency
	return []domain.SyncResult{{DeviceID: "a", Success: true}, {DeviceID: "b"}}, nil
}

type openLocker struct{ held bool }

func (l *openLocker) Lock(context.Context, string) (func(context.Context) error, error) {
	l.held = true
	return func(context.Context) error {
		l.held = false
		return nil
	}, nil
}

type harness struct {
	sync   *stubSync
	batch  *stubBatch
	locker *openLocker
	closed int
}

func newHarness() *harness {
	return &harness{
		sync:   &stubSync{breakers: map[string]string{"fitbit": "open"}},
		batch:  &stubBatch{},
		locker: &openLocker{},
	}
}

func (h *harness) open(context.Context) (*runtime, error) {
	return &runtime{
		sync:             h.sync,
		batch:            h.batch,
		locker:           h.locker,
		batchConcurrency: 4,
		close: func(context.Context) error {
			h.closed++
			return nil
		},
	}, nil
}

func run(t *testing.T, h *harness, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd(h.open, &out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSyncCommand(t *testing.T) {
	t.Run("passes window and types", func(t *testing.T) {
		h := newHarness()
		h.sync.syncResult = domain.SyncResult{Success: true, MetricsCount: 3}

		out, err := run(t, h, "sync", "dev-1", "--start", "2025-03-01", "--end", "2025-03-02", "--types", "steps,heart_rate")
		require.NoError(t, err)

		var result domain.SyncResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "dev-1", result.DeviceID)
		assert.Equal(t, 3, result.MetricsCount)

		require.NotNil(t, h.sync.syncOpts.StartDate)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *h.sync.syncOpts.StartDate)
		assert.Equal(t, []domain.MetricType{domain.MetricTypeSteps, domain.MetricTypeHeartRate}, h.sync.syncOpts.MetricTypes)
		assert.False(t, h.locker.held)
		assert.Equal(t, 1, h.closed)
	})

	t.Run("failed sync exits with error", func(t *testing.T) {
		h := newHarness()
		h.sync.syncResult = domain.SyncResult{ErrorMessage: "circuit breaker is open"}

		_, err := run(t, h, "sync", "dev-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "circuit breaker is open")
	})

	t.Run("invalid type is rejected before opening", func(t *testing.T) {
		h := newHarness()

		_, err := run(t, h, "sync", "dev-1", "--types", "mood")
		require.Error(t, err)
		assert.Equal(t, 0, h.sync.syncedCalls)
		assert.Equal(t, 0, h.closed)
	})

	t.Run("reversed window is rejected", func(t *testing.T) {
		h := newHarness()

		_, err := run(t, h, "sync", "dev-1", "--start", "2025-03-02", "--end", "2025-03-01")
		require.Error(t, err)
		assert.Equal(t, 0, h.sync.syncedCalls)
	})
}

func TestSyncAllCommand(t *testing.T) {
	h := newHarness()

	out, err := run(t, h, "sync-all")
	require.NoError(t, err)
	assert.Equal(t, 4, h.batch.concurrency)

	var results []domain.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Len(t, results, 2)

	_, err = run(t, h, "sync-all", "--concurrency", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, h.batch.concurrency)
}

func TestAggregateCommand(t *testing.T) {
	h := newHarness()

	out, err := run(t, h, "aggregate", "dev-1", "--date", "2025-03-10", "--type", "steps")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), h.sync.aggDate)
	assert.Equal(t, domain.MetricTypeSteps, h.sync.aggType)
	assert.Contains(t, out, "8500")

	_, err = run(t, h, "aggregate", "dev-1", "--date", "10/03/2025", "--type", "steps")
	require.Error(t, err)

	_, err = run(t, h, "aggregate", "dev-1")
	require.Error(t, err)
}

func TestRefreshCommand(t *testing.T) {
	h := newHarness()

	out, err := run(t, h, "refresh", "dev-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"device_id": "dev-1"`)

	h.sync.refreshErr = errors.New("no refresh token available")
	_, err = run(t, h, "refresh", "dev-1")
	require.Error(t, err)
}

func TestBreakersCommand(t *testing.T) {
	h := newHarness()

	out, err := run(t, h, "breakers")
	require.NoError(t, err)

	var states map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &states))
	assert.Equal(t, "open", states["fitbit"])
}
