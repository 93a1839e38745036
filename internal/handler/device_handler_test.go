package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/aggregator"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/dto"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
	"github.com/prperemyshlev/wearable-sync/internal/service"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/pkg/apiclient"
)

const testSecret = "test-secret-key-that-is-at-least-32-characters-long"

type stubSyncService struct {
	devices   map[string]*domain.WearableDevice
	register  func(domain.WearableDevice) (*domain.WearableDevice, error)
	sync      func(string, domain.SyncOptions) domain.SyncResult
	aggregate func(string, time.Time, domain.MetricType) (*domain.HealthMetric, error)
	refresh   func(string) (*domain.WearableDevice, error)
}

func (s *stubSyncService) RegisterDevice(_ context.Context, d domain.WearableDevice) (*domain.WearableDevice, error) {
	return s.register(d)
}

func (s *stubSyncService) GetDevice(_ context.Context, id string) (*domain.WearableDevice, error) {
	d, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrDeviceNotFound, id)
	}
	return d, nil
}

func (s *stubSyncService) SyncDeviceData(_ context.Context, id string, opts domain.SyncOptions) domain.SyncResult {
	return s.sync(id, opts)
}

func (s *stubSyncService) AggregateMetrics(_ context.Context, id string, date time.Time, t domain.MetricType) (*domain.HealthMetric, error) {
	return s.aggregate(id, date, t)
}

func (s *stubSyncService) RefreshDeviceToken(_ context.Context, id string) (*domain.WearableDevice, error) {
	return s.refresh(id)
}

func (s *stubSyncService) CircuitBreakerStates() map[string]string {
	return map[string]string{"fitbit": "closed"}
}

type stubLocker struct {
	held map[string]bool
}

func (l *stubLocker) Lock(_ context.Context, id string) (func(context.Context) error, error) {
	if l.held[id] {
		return nil, service.ErrDeviceLocked
	}
	return func(context.Context) error { return nil }, nil
}

type stubLimiter struct {
	calls int
	limit int
}

func (l *stubLimiter) Allow(_ context.Context, _ string, limit int, _ time.Duration) (service.RateLimitStatus, error) {
	l.calls++
	if l.calls > l.limit {
		return service.RateLimitStatus{Limit: limit, RetryAfter: 30 * time.Second}, service.ErrRateLimited
	}
	return service.RateLimitStatus{Limit: limit, Remaining: l.limit - l.calls}, nil
}

func testDevice(id string) *domain.WearableDevice {
	return &domain.WearableDevice{
		ID:              id,
		UserID:          "user-1",
		Type:            domain.DeviceTypeFitbit,
		Manufacturer:    "Fitbit",
		Model:           "Charge 6",
		FirmwareVersion: "1.2",
		IsActive:        true,
		SyncStatus:      domain.SyncStatusSynced,
		RegisteredAt:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		OAuthToken:      "secret-access",
		RefreshToken:    "secret-refresh",
	}
}

func newRouter(t *testing.T, svc service.SyncService, locker service.DeviceLocker, limiter RateLimiter) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtManager := utils.NewJWTManager(testSecret, time.Hour)
	token, err := jwtManager.GenerateAccessToken("user-1")
	require.NoError(t, err)

	h := NewDeviceHandler(svc, locker)
	router := gin.New()
	api := router.Group("/api/v1", AuthMiddleware(jwtManager))
	api.POST("/devices", h.Register)
	api.GET("/devices/:id", h.Get)
	api.POST("/devices/:id/sync", RateLimitMiddleware(limiter, 2, time.Minute, DeviceKey, zap.NewNop()), h.Sync)
	api.POST("/devices/:id/token/refresh", h.RefreshToken)
	api.GET("/devices/:id/metrics/daily", h.DailyMetric)

	return router, token
}

func do(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := newRouter(t, &stubSyncService{}, &stubLocker{}, &stubLimiter{limit: 10})

	w := do(router, http.MethodGet, "/api/v1/devices/band-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodGet, "/api/v1/devices/band-1", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid or expired token", decodeError(t, w).Message)
}

func TestRegister(t *testing.T) {
	var received domain.WearableDevice
	svc := &stubSyncService{
		register: func(d domain.WearableDevice) (*domain.WearableDevice, error) {
			received = d
			registered := d.WithCredentials(domain.Credentials{AccessToken: "access", RefreshToken: "refresh"})
			return &registered, nil
		},
	}
	router, token := newRouter(t, svc, &stubLocker{}, &stubLimiter{limit: 10})

	w := do(router, http.MethodPost, "/api/v1/devices", token, dto.RegisterDeviceRequest{
		ID:              "band-1",
		Type:            "fitbit",
		Manufacturer:    "Fitbit",
		Model:           "Charge 6",
		FirmwareVersion: "1.2",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "user-1", received.UserID)
	assert.True(t, received.IsActive)
	assert.Equal(t, domain.SyncStatusPending, received.SyncStatus)
	assert.False(t, received.RegisteredAt.IsZero())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["has_credentials"])
	assert.NotContains(t, w.Body.String(), "access")
	assert.NotContains(t, w.Body.String(), "refresh")
}

func TestRegister_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &utils.ValidationError{Subject: "device", Errors: []string{"Model is required"}}, http.StatusBadRequest},
		{"duplicate", fmt.Errorf("failed to save device: %w", repository.ErrDuplicateDevice), http.StatusConflict},
		{"unsupported", fmt.Errorf("%w: garmin", service.ErrUnsupportedDeviceType), http.StatusUnprocessableEntity},
		{"circuit open", fmt.Errorf("failed to register: %w", apiclient.ErrCircuitOpen), http.StatusBadGateway},
		{"vendor rejected", &apiclient.HTTPError{StatusCode: http.StatusUnauthorized}, http.StatusBadGateway},
		{"vendor unreachable", fmt.Errorf("apple registration failed: POST /v1/devices/register: %w: %w",
			apiclient.ErrUpstreamUnavailable, &url.Error{Op: "Post", URL: "http://vendor", Err: syscall.ECONNREFUSED}), http.StatusBadGateway},
		{"vendor deadline", fmt.Errorf("fitbit token refresh failed: %w: %w",
			apiclient.ErrUpstreamUnavailable, context.DeadlineExceeded), http.StatusBadGateway},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubSyncService{
				register: func(domain.WearableDevice) (*domain.WearableDevice, error) { return nil, tt.err },
			}
			router, token := newRouter(t, svc, &stubLocker{}, &stubLimiter{limit: 10})

			w := do(router, http.MethodPost, "/api/v1/devices", token, dto.RegisterDeviceRequest{ID: "band-1"})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRegister_ValidationDetails(t *testing.T) {
	svc := &stubSyncService{
		register: func(domain.WearableDevice) (*domain.WearableDevice, error) {
			return nil, &utils.ValidationError{Subject: "device", Errors: []string{"Manufacturer is required", "Model is required"}}
		},
	}
	router, token := newRouter(t, svc, &stubLocker{}, &stubLimiter{limit: 10})

	w := do(router, http.MethodPost, "/api/v1/devices", token, dto.RegisterDeviceRequest{ID: "band-1"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, []any{"Manufacturer is required", "Model is required"}, resp.Details)
}

func TestGet(t *testing.T) {
	svc := &stubSyncService{devices: map[string]*domain.WearableDevice{"band-1": testDevice("band-1")}}
	router, token := newRouter(t, svc, &stubLocker{}, &stubLimiter{limit: 10})

	w := do(router, http.MethodGet, "/api/v1/devices/band-1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-access")

	var resp dto.DeviceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "synced", resp.SyncStatus)
	assert.True(t, resp.HasCredentials)

	w = do(router, http.MethodGet, "/api/v1/devices/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSync(t *testing.T) {
	inactive := testDevice("band-2")
	inactive.IsActive = false

	var receivedOpts domain.SyncOptions
	svc := &stubSyncService{
		devices: map[string]*domain.WearableDevice{
			"band-1": testDevice("band-1"),
			"band-2": inactive,
			"band-3": testDevice("band-3"),
		},
		sync: func(id string, opts domain.SyncOptions) domain.SyncResult {
			receivedOpts = opts
			return domain.SyncResult{DeviceID: id, Success: true, MetricsCount: 2}
		},
	}
	router, token := newRouter(t, svc, &stubLocker{held: map[string]bool{"band-3": true}}, &stubLimiter{limit: 10})

	w := do(router, http.MethodPost, "/api/v1/devices/band-1/sync", token, dto.SyncRequest{MetricTypes: []string{"steps"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result domain.SyncResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.MetricsCount)
	assert.Equal(t, []domain.MetricType{domain.MetricTypeSteps}, receivedOpts.MetricTypes)

	w = do(router, http.MethodPost, "/api/v1/devices/band-1/sync", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/api/v1/devices/band-1/sync", token, dto.SyncRequest{MetricTypes: []string{"mood"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{"Invalid metric type: mood"}, decodeError(t, w).Details)

	w = do(router, http.MethodPost, "/api/v1/devices/band-2/sync", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(router, http.MethodPost, "/api/v1/devices/band-3/sync", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodPost, "/api/v1/devices/missing/sync", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSync_RateLimited(t *testing.T) {
	svc := &stubSyncService{
		devices: map[string]*domain.WearableDevice{"band-1": testDevice("band-1")},
		sync: func(id string, _ domain.SyncOptions) domain.SyncResult {
			return domain.SyncResult{DeviceID: id, Success: true}
		},
	}
	router, token := newRouter(t, svc, &stubLocker{}, &stubLimiter{limit: 1})

	w := do(router, http.MethodPost, "/api/v1/devices/band-1/sync", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do(router, http.MethodPost, "/api/v1/devices/band-1/sync", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestRefreshToken(t *testing.T) {
	svc := &stubSyncService{
		refresh: func(id string) (*domain.WearableDevice, error) {
			if id == "band-1" {
				return testDevice(id), nil
			}
			return nil, fmt.Errorf("device %s: %w", id, service.ErrNoRefreshToken)
		},
	}
	router, token := newRouter(t, svc, &stubLocker{}, &stubLimiter{limit: 10})

	w := do(router, http.MethodPost, "/api/v1/devices/band-1/token/refresh", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/api/v1/devices/band-2/token/refresh", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDailyMetric(t *testing.T) {
	day := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	svc := &stubSyncService{
		aggregate: func(id string, date time.Time, metricType domain.MetricType) (*domain.HealthMetric, error) {
			if metricType == domain.MetricTypeWeight {
				return nil, fmt.Errorf("%w: weight", aggregator.ErrNoData)
			}
			assert.Equal(t, day, date)
			return &domain.HealthMetric{
				ID:        aggregator.DailyID(metricType, date),
				DeviceID:  id,
				Type:      metricType,
				Value:     8500,
				Unit:      "steps",
				Timestamp: date,
			}, nil
		},
	}
	router, token := newRouter(t, svc, &stubLocker{}, &stubLimiter{limit: 10})

	w := do(router, http.MethodGet, "/api/v1/devices/band-1/metrics/daily?date=2025-03-09&type=steps", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.MetricResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "daily_steps_2025-03-09", resp.ID)
	assert.Equal(t, 8500.0, resp.Value)

	w = do(router, http.MethodGet, "/api/v1/devices/band-1/metrics/daily?date=2025-03-09&type=weight", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/api/v1/devices/band-1/metrics/daily?date=03/09/2025&type=steps", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/api/v1/devices/band-1/metrics/daily?type=steps", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
