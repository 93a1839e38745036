package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

const deviceColumns = `id, user_id, type, manufacturer, model, firmware_version, is_active, sync_status,
		registered_at, updated_at, last_sync_at, last_sync_error, oauth_token, refresh_token,
		token_expires_at, metadata`

// deviceRepository implements DeviceRepository interface
type deviceRepository struct {
	db     *database.Postgres
	cipher *utils.TokenCipher
}

// NewDeviceRepository creates a new device repository.
// OAuth tokens are encrypted with cipher before they reach the database.
func NewDeviceRepository(db *database.Postgres, cipher *utils.TokenCipher) DeviceRepository {
	return &deviceRepository{db: db, cipher: cipher}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Save inserts the device or overwrites every mutable column of an existing one
func (r *deviceRepository) Save(ctx context.Context, device *domain.WearableDevice) error {
	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			manufacturer = EXCLUDED.manufacturer,
			model = EXCLUDED.model,
			firmware_version = EXCLUDED.firmware_version,
			is_active = EXCLUDED.is_active,
			sync_status = EXCLUDED.sync_status,
			updated_at = EXCLUDED.updated_at,
			last_sync_at = EXCLUDED.last_sync_at,
			last_sync_error = EXCLUDED.last_sync_error,
			oauth_token = EXCLUDED.oauth_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			metadata = EXCLUDED.metadata
		WHERE devices.user_id = EXCLUDED.user_id
	`

	now := time.Now()
	if device.RegisteredAt.IsZero() {
		device.RegisteredAt = now
	}
	device.UpdatedAt = now

	accessToken, refreshToken, err := r.encryptTokens(device)
	if err != nil {
		return err
	}

	metadata, err := marshalMetadata(device.Metadata)
	if err != nil {
		return err
	}

	result, err := r.db.DB.ExecContext(ctx, query,
		device.ID,
		device.UserID,
		string(device.Type),
		device.Manufacturer,
		device.Model,
		device.FirmwareVersion,
		device.IsActive,
		string(device.SyncStatus),
		device.RegisteredAt,
		device.UpdatedAt,
		nullTime(device.LastSyncAt),
		nullString(device.LastSyncError),
		nullString(accessToken),
		nullString(refreshToken),
		nullTime(device.TokenExpiresAt),
		metadata,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("device %s: %w", device.ID, ErrDuplicateDevice)
			}
		}
		return fmt.Errorf("failed to save device: %w", err)
	}

	// The conditional upsert touches no row when the id belongs to another user
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device %s: %w", device.ID, ErrDuplicateDevice)
	}

	return nil
}

// GetByID retrieves a device by ID
func (r *deviceRepository) GetByID(ctx context.Context, id string) (*domain.WearableDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`

	device, err := r.scanDevice(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get device by id: %w", err)
	}

	return device, nil
}

// UpdateStatus sets the sync status and returns the updated device
func (r *deviceRepository) UpdateStatus(ctx context.Context, id string, status domain.SyncStatus) (*domain.WearableDevice, error) {
	query := `
		UPDATE devices
		SET sync_status = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + deviceColumns

	device, err := r.scanDevice(r.db.DB.QueryRowContext(ctx, query, string(status), time.Now(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update device status: %w", err)
	}

	return device, nil
}

// CompleteSync records the terminal state of a sync attempt.
// A nil syncedAt keeps the previous last_sync_at.
func (r *deviceRepository) CompleteSync(ctx context.Context, id string, status domain.SyncStatus, syncedAt *time.Time, lastError string) (*domain.WearableDevice, error) {
	query := `
		UPDATE devices
		SET sync_status = $1,
			last_sync_at = COALESCE($2, last_sync_at),
			last_sync_error = $3,
			updated_at = $4
		WHERE id = $5
		RETURNING ` + deviceColumns

	device, err := r.scanDevice(r.db.DB.QueryRowContext(ctx, query,
		string(status),
		nullTime(syncedAt),
		nullString(lastError),
		time.Now(),
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to complete device sync: %w", err)
	}

	return device, nil
}

// UpdateCredentials stores the device's current OAuth bundle
func (r *deviceRepository) UpdateCredentials(ctx context.Context, device *domain.WearableDevice) error {
	query := `
		UPDATE devices
		SET oauth_token = $1, refresh_token = $2, token_expires_at = $3, updated_at = $4
		WHERE id = $5
	`

	accessToken, refreshToken, err := r.encryptTokens(device)
	if err != nil {
		return err
	}

	device.UpdatedAt = time.Now()
	result, err := r.db.DB.ExecContext(ctx, query,
		nullString(accessToken),
		nullString(refreshToken),
		nullTime(device.TokenExpiresAt),
		device.UpdatedAt,
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update device credentials: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device %s not found: %w", device.ID, ErrNotFound)
	}

	return nil
}

// ListActive returns every active device in registration order
func (r *deviceRepository) ListActive(ctx context.Context) ([]*domain.WearableDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE is_active = true ORDER BY registered_at`

	rows, err := r.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active devices: %w", err)
	}
	defer rows.Close()

	var devices []*domain.WearableDevice
	for rows.Next() {
		device, err := r.scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

func (r *deviceRepository) scanDevice(row rowScanner) (*domain.WearableDevice, error) {
	device := &domain.WearableDevice{}
	var (
		deviceType     string
		syncStatus     string
		lastSyncAt     sql.NullTime
		lastSyncError  sql.NullString
		accessToken    sql.NullString
		refreshToken   sql.NullString
		tokenExpiresAt sql.NullTime
		metadata       []byte
	)

	err := row.Scan(
		&device.ID,
		&device.UserID,
		&deviceType,
		&device.Manufacturer,
		&device.Model,
		&device.FirmwareVersion,
		&device.IsActive,
		&syncStatus,
		&device.RegisteredAt,
		&device.UpdatedAt,
		&lastSyncAt,
		&lastSyncError,
		&accessToken,
		&refreshToken,
		&tokenExpiresAt,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	device.Type = domain.DeviceType(deviceType)
	device.SyncStatus = domain.SyncStatus(syncStatus)
	device.LastSyncError = lastSyncError.String
	if lastSyncAt.Valid {
		device.LastSyncAt = &lastSyncAt.Time
	}
	if tokenExpiresAt.Valid {
		device.TokenExpiresAt = &tokenExpiresAt.Time
	}

	if device.OAuthToken, err = r.cipher.Decrypt(accessToken.String); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if device.RefreshToken, err = r.cipher.Decrypt(refreshToken.String); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	if device.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}

	return device, nil
}

func (r *deviceRepository) encryptTokens(device *domain.WearableDevice) (string, string, error) {
	accessToken, err := r.cipher.Encrypt(device.OAuthToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshToken, err := r.cipher.Encrypt(device.RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return raw, nil
}

func unmarshalMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if len(metadata) == 0 {
		return nil, nil
	}
	return metadata, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
