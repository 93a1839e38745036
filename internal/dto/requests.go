package dto

import "time"

// RegisterDeviceRequest represents a device registration request.
// UserID defaults to the authenticated subject when omitted.
type RegisterDeviceRequest struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Type            string         `json:"type"`
	Manufacturer    string         `json:"manufacturer"`
	Model           string         `json:"model"`
	FirmwareVersion string         `json:"firmware_version"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// SyncRequest optionally narrows the pulled window and metric types
type SyncRequest struct {
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	MetricTypes []string   `json:"metric_types,omitempty"`
}

// DailyMetricQuery represents the daily aggregate query string
type DailyMetricQuery struct {
	Date string `form:"date" binding:"required"`
	Type string `form:"type" binding:"required"`
}
