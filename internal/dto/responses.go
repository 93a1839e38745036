package dto

import (
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// DeviceResponse represents a device in API responses. Credentials are never included.
type DeviceResponse struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Type            string         `json:"type"`
	Manufacturer    string         `json:"manufacturer"`
	Model           string         `json:"model"`
	FirmwareVersion string         `json:"firmware_version"`
	IsActive        bool           `json:"is_active"`
	SyncStatus      string         `json:"sync_status"`
	RegisteredAt    time.Time      `json:"registered_at"`
	LastSyncAt      *time.Time     `json:"last_sync_at"`
	LastSyncError   string         `json:"last_sync_error,omitempty"`
	HasCredentials  bool           `json:"has_credentials"`
	TokenExpiresAt  *time.Time     `json:"token_expires_at"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// NewDeviceResponse converts a domain device
func NewDeviceResponse(d *domain.WearableDevice) DeviceResponse {
	return DeviceResponse{
		ID:              d.ID,
		UserID:          d.UserID,
		Type:            string(d.Type),
		Manufacturer:    d.Manufacturer,
		Model:           d.Model,
		FirmwareVersion: d.FirmwareVersion,
		IsActive:        d.IsActive,
		SyncStatus:      string(d.SyncStatus),
		RegisteredAt:    d.RegisteredAt,
		LastSyncAt:      d.LastSyncAt,
		LastSyncError:   d.LastSyncError,
		HasCredentials:  d.IsRegistered(),
		TokenExpiresAt:  d.TokenExpiresAt,
		Metadata:        d.Metadata,
	}
}

// MetricResponse represents a health metric in API responses
type MetricResponse struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	Type      string         `json:"type"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMetricResponse converts a domain metric
func NewMetricResponse(m *domain.HealthMetric) MetricResponse {
	return MetricResponse{
		ID:        m.ID,
		DeviceID:  m.DeviceID,
		Type:      string(m.Type),
		Value:     m.Value,
		Unit:      m.Unit,
		Timestamp: m.Timestamp,
		Metadata:  m.Metadata,
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
