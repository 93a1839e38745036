package domain

import "time"

// SyncOptions restricts the window and metric types pulled during a sync.
// Nil bounds mean the vendor default window.
type SyncOptions struct {
	StartDate   *time.Time
	EndDate     *time.Time
	MetricTypes []MetricType
}

// Wants reports whether metrics of type t are of interest
func (o SyncOptions) Wants(t MetricType) bool {
	if len(o.MetricTypes) == 0 {
		return true
	}
	for _, mt := range o.MetricTypes {
		if mt == t {
			return true
		}
	}
	return false
}

// SyncResult describes the outcome of a single sync attempt
type SyncResult struct {
	DeviceID     string     `json:"device_id"`
	Success      bool       `json:"success"`
	MetricsCount int        `json:"metrics_count"`
	SyncedAt     time.Time  `json:"synced_at"`
	ErrorMessage string     `json:"error_message,omitempty"`
	NextSyncAt   *time.Time `json:"next_sync_at,omitempty"`
}
