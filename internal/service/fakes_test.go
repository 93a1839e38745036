package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/events"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
)

type memStore struct {
	mu           sync.Mutex
	devices      map[string]*domain.WearableDevice
	metrics      []domain.HealthMetric
	deviceWrites map[string]int
	saveErr      error
	markSynced   error
}

func newMemStore(devices ...domain.WearableDevice) *memStore {
	s := &memStore{
		devices:      make(map[string]*domain.WearableDevice),
		deviceWrites: make(map[string]int),
	}
	for _, d := range devices {
		d := d
		s.devices[d.ID] = &d
	}
	return s
}

func (s *memStore) device(id string) domain.WearableDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.devices[id]
}

func (s *memStore) writes(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceWrites[id]
}

func (s *memStore) GetDevice(_ context.Context, id string) (*domain.WearableDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s not found: %w", id, repository.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) UpdateDeviceStatus(_ context.Context, id string, status domain.SyncStatus) (*domain.WearableDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d.SyncStatus = status
	s.deviceWrites[id]++
	cp := *d
	return &cp, nil
}

func (s *memStore) CompleteSync(_ context.Context, id string, status domain.SyncStatus, syncedAt *time.Time, lastError string) (*domain.WearableDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if status == domain.SyncStatusSynced && s.markSynced != nil {
		return nil, s.markSynced
	}
	d.SyncStatus = status
	if syncedAt != nil {
		d.LastSyncAt = syncedAt
	}
	d.LastSyncError = lastError
	s.deviceWrites[id]++
	cp := *d
	return &cp, nil
}

func (s *memStore) GetDeviceMetrics(_ context.Context, id string, start, end time.Time, types []domain.MetricType) ([]domain.HealthMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filter := domain.SyncOptions{MetricTypes: types}
	var out []domain.HealthMetric
	for _, m := range s.metrics {
		if m.DeviceID != id || m.Timestamp.Before(start) || !m.Timestamp.Before(end) {
			continue
		}
		if filter.Wants(m.Type) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) SaveDevice(_ context.Context, device *domain.WearableDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *device
	s.devices[device.ID] = &cp
	return nil
}

func (s *memStore) UpdateCredentials(_ context.Context, device *domain.WearableDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[device.ID]
	if !ok {
		return repository.ErrNotFound
	}
	d.OAuthToken = device.OAuthToken
	d.RefreshToken = device.RefreshToken
	d.TokenExpiresAt = device.TokenExpiresAt
	return nil
}

func (s *memStore) SaveMetrics(_ context.Context, metrics []domain.HealthMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.metrics = append(s.metrics, metrics...)
	return nil
}

func (s *memStore) ListActiveDevices(_ context.Context) ([]*domain.WearableDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.WearableDevice
	for _, id := range sortedIDs(s.devices) {
		if d := s.devices[id]; d.IsActive {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func sortedIDs(devices map[string]*domain.WearableDevice) []string {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fakeIntegration struct {
	mu            sync.Mutex
	vendor        string
	state         string
	registerFn    func(domain.WearableDevice) (domain.Credentials, error)
	pullFn        func(domain.WearableDevice, domain.SyncOptions) ([]domain.HealthMetric, error)
	refreshFn     func(domain.WearableDevice) (domain.Credentials, error)
	registerCalls int
	pullCalls     int
}

func (f *fakeIntegration) Vendor() string { return f.vendor }

func (f *fakeIntegration) CircuitBreakerState() string {
	if f.state == "" {
		return "closed"
	}
	return f.state
}

func (f *fakeIntegration) Register(_ context.Context, device domain.WearableDevice) (domain.Credentials, error) {
	f.mu.Lock()
	f.registerCalls++
	f.mu.Unlock()
	return f.registerFn(device)
}

func (f *fakeIntegration) PullAndNormalize(_ context.Context, device domain.WearableDevice, opts domain.SyncOptions) ([]domain.HealthMetric, error) {
	f.mu.Lock()
	f.pullCalls++
	f.mu.Unlock()
	return f.pullFn(device, opts)
}

func (f *fakeIntegration) RefreshToken(_ context.Context, device domain.WearableDevice) (domain.Credentials, error) {
	return f.refreshFn(device)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.SyncCompleted
	err    error
}

func (p *recordingPublisher) PublishSyncCompleted(_ context.Context, event events.SyncCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingRecorder struct {
	mu        sync.Mutex
	syncs     []string
	refreshes []string
}

func (r *recordingRecorder) RecordSync(_ context.Context, vendor, outcome string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs = append(r.syncs, vendor+":"+outcome)
}

func (r *recordingRecorder) RecordTokenRefresh(_ context.Context, vendor, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes = append(r.refreshes, vendor+":"+outcome)
}

type memLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	locks  int
	unlock int
}

func newMemLocker(held ...string) *memLocker {
	l := &memLocker{held: make(map[string]bool)}
	for _, id := range held {
		l.held[id] = true
	}
	return l
}

func (l *memLocker) Lock(_ context.Context, deviceID string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[deviceID] {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrDeviceLocked)
	}
	l.held[deviceID] = true
	l.locks++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, deviceID)
		l.unlock++
		return nil
	}, nil
}
