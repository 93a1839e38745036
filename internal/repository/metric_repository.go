package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

// metricRepository implements MetricRepository interface
type metricRepository struct {
	db *database.Postgres
}

// NewMetricRepository creates a new health metric repository
func NewMetricRepository(db *database.Postgres) MetricRepository {
	return &metricRepository{db: db}
}

// SaveBatch upserts metrics in a single transaction.
// Rows are keyed by (device_id, id) so daily aggregates overwrite their previous value.
func (r *metricRepository) SaveBatch(ctx context.Context, metrics []domain.HealthMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO health_metrics (device_id, id, type, value, unit, timestamp, metadata, source, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device_id, id) DO UPDATE SET
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			unit = EXCLUDED.unit,
			timestamp = EXCLUDED.timestamp,
			metadata = EXCLUDED.metadata,
			source = EXCLUDED.source,
			confidence = EXCLUDED.confidence
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare metric insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		metadata, err := marshalMetadata(m.Metadata)
		if err != nil {
			return err
		}

		var confidence sql.NullFloat64
		if m.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *m.Confidence, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			m.DeviceID,
			m.ID,
			string(m.Type),
			m.Value,
			m.Unit,
			m.Timestamp,
			metadata,
			nullString(m.Source),
			confidence,
		); err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" { // foreign_key_violation
				return fmt.Errorf("device %s not found: %w", m.DeviceID, ErrNotFound)
			}
			return fmt.Errorf("failed to insert metric %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metrics: %w", err)
	}

	return nil
}

// ListByDevice returns the device's metrics with start <= timestamp < end, oldest first.
// An empty types slice selects every metric type.
func (r *metricRepository) ListByDevice(ctx context.Context, deviceID string, start, end time.Time, types []domain.MetricType) ([]domain.HealthMetric, error) {
	query := `
		SELECT device_id, id, type, value, unit, timestamp, metadata, source, confidence
		FROM health_metrics
		WHERE device_id = $1 AND timestamp >= $2 AND timestamp < $3
	`
	args := []any{deviceID, start, end}

	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		query += ` AND type = ANY($4)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY timestamp`

	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.HealthMetric
	for rows.Next() {
		var (
			m          domain.HealthMetric
			metricType string
			metadata   []byte
			source     sql.NullString
			confidence sql.NullFloat64
		)
		if err := rows.Scan(
			&m.DeviceID,
			&m.ID,
			&metricType,
			&m.Value,
			&m.Unit,
			&m.Timestamp,
			&metadata,
			&source,
			&confidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}

		m.Type = domain.MetricType(metricType)
		m.Source = source.String
		if confidence.Valid {
			c := confidence.Float64
			m.Confidence = &c
		}
		if m.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}

		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metrics: %w", err)
	}

	return metrics, nil
}
