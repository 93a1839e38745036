package domain

import "time"

// DeviceType identifies the vendor family of a wearable device
type DeviceType string

const (
	DeviceTypeAppleWatch    DeviceType = "apple_watch"
	DeviceTypeFitbit        DeviceType = "fitbit"
	DeviceTypeGarmin        DeviceType = "garmin"
	DeviceTypeSamsungGalaxy DeviceType = "samsung_galaxy"
)

// IsValid reports whether t is one of the known device types
func (t DeviceType) IsValid() bool {
	switch t {
	case DeviceTypeAppleWatch, DeviceTypeFitbit, DeviceTypeGarmin, DeviceTypeSamsungGalaxy:
		return true
	}
	return false
}

// SyncStatus is the per-device synchronization state
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// IsValid reports whether s is one of the known sync statuses
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSyncing, SyncStatusSynced, SyncStatusFailed:
		return true
	}
	return false
}

// WearableDevice represents a paired device owned by a single user
type WearableDevice struct {
	ID              string         `json:"id" db:"id"`
	UserID          string         `json:"user_id" db:"user_id"`
	Type            DeviceType     `json:"type" db:"type"`
	Manufacturer    string         `json:"manufacturer" db:"manufacturer"`
	Model           string         `json:"model" db:"model"`
	FirmwareVersion string         `json:"firmware_version" db:"firmware_version"`
	IsActive        bool           `json:"is_active" db:"is_active"`
	SyncStatus      SyncStatus     `json:"sync_status" db:"sync_status"`
	RegisteredAt    time.Time      `json:"registered_at" db:"registered_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
	LastSyncAt      *time.Time     `json:"last_sync_at" db:"last_sync_at"`
	LastSyncError   string         `json:"last_sync_error,omitempty" db:"last_sync_error"`
	OAuthToken      string         `json:"-" db:"oauth_token"`
	RefreshToken    string         `json:"-" db:"refresh_token"`
	TokenExpiresAt  *time.Time     `json:"token_expires_at" db:"token_expires_at"`
	Metadata        map[string]any `json:"metadata,omitempty" db:"metadata"`
}

// IsRegistered reports whether the device completed vendor registration
func (d WearableDevice) IsRegistered() bool {
	return d.OAuthToken != ""
}

// WithCredentials returns a copy of the device carrying the given OAuth bundle.
// An empty refresh token in creds keeps the current one.
func (d WearableDevice) WithCredentials(creds Credentials) WearableDevice {
	d.OAuthToken = creds.AccessToken
	if creds.RefreshToken != "" {
		d.RefreshToken = creds.RefreshToken
	}
	if !creds.ExpiresAt.IsZero() {
		expiresAt := creds.ExpiresAt
		d.TokenExpiresAt = &expiresAt
	} else {
		d.TokenExpiresAt = nil
	}
	return d
}

// Credentials represents an OAuth credential bundle issued by a vendor
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
