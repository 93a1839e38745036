package service

import "errors"

var (
	// ErrDeviceNotFound is returned when the device id is unknown to the store
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceInactive is returned when syncing a device whose is_active flag is false
	ErrDeviceInactive = errors.New("device is inactive")

	// ErrNoRefreshToken is returned when refreshing a device that holds no refresh token
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrUnsupportedDeviceType is returned for device types without a vendor integration
	ErrUnsupportedDeviceType = errors.New("unsupported device type")

	// ErrSyncPanic marks a panic recovered inside the vendor pipeline
	ErrSyncPanic = errors.New("sync pipeline panicked")
)
