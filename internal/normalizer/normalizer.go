// Package normalizer translates vendor health payloads into canonical metrics.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// Vendor source tags attached to normalized metrics
const (
	SourceApple  = "apple_health"
	SourceFitbit = "fitbit"
)

var (
	// ErrMissingTimestamp is returned when a payload carries metrics but no usable timestamp
	ErrMissingTimestamp = errors.New("payload timestamp is missing")

	// ErrInvalidValue is returned when a mapped field is not numeric
	ErrInvalidValue = errors.New("payload value is not numeric")
)

// FieldMapping binds a vendor payload field to a canonical metric type
type FieldMapping struct {
	Field string
	Type  domain.MetricType
	Unit  string
}

// Schema describes how one vendor lays out a payload. IDField, when set,
// names the vendor's own record identifier.
type Schema struct {
	Source         string
	TimestampField string
	IDField        string
	Fields         []FieldMapping
}

// Normalize converts payload into one metric per present mapped field
func (s Schema) Normalize(payload map[string]any, deviceID string) ([]domain.HealthMetric, error) {
	return s.normalize(payload, deviceID, nil)
}

// NormalizeBatch normalizes every record and concatenates the results.
// Records without a vendor id that share a timestamp are told apart by
// their order within the batch.
func (s Schema) NormalizeBatch(records []map[string]any, deviceID string) ([]domain.HealthMetric, error) {
	metrics := make([]domain.HealthMetric, 0, len(records)*len(s.Fields))
	seen := make(map[string]int, len(records))
	for i, record := range records {
		normalized, err := s.normalize(record, deviceID, seen)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		metrics = append(metrics, normalized...)
	}
	return metrics, nil
}

func (s Schema) normalize(payload map[string]any, deviceID string, seen map[string]int) ([]domain.HealthMetric, error) {
	present := make([]FieldMapping, 0, len(s.Fields))
	for _, f := range s.Fields {
		if v, ok := payload[f.Field]; ok && v != nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return []domain.HealthMetric{}, nil
	}

	timestamp, err := parseTimestamp(payload[s.TimestampField])
	if err != nil {
		return nil, fmt.Errorf("%s field %q: %w", s.Source, s.TimestampField, err)
	}

	discriminator := s.recordID(payload)
	if discriminator == "" && seen != nil {
		key := timestamp.Format(time.RFC3339Nano)
		n := seen[key]
		seen[key] = n + 1
		if n > 0 {
			discriminator = "#" + strconv.Itoa(n)
		}
	}

	metrics := make([]domain.HealthMetric, 0, len(present))
	for _, f := range present {
		value, err := toFloat(payload[f.Field])
		if err != nil {
			return nil, fmt.Errorf("%s field %q: %w", s.Source, f.Field, err)
		}

		unit := f.Unit
		if unit == "" {
			unit = f.Type.DefaultUnit()
		}

		metric := domain.NewHealthMetric(deviceID, f.Type, value, unit, timestamp, nil)
		metric.ID = ReadingID(deviceID, s.Source, f.Type, timestamp, discriminator)
		metric.Source = s.Source
		metrics = append(metrics, metric)
	}

	return metrics, nil
}

func (s Schema) recordID(payload map[string]any) string {
	if s.IDField == "" {
		return ""
	}
	switch v := payload[s.IDField].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// readingNamespace scopes vendor reading ids
var readingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:wearable-sync:reading"))

// ReadingID derives a stable id for one vendor reading so that pulling the
// same reading again overwrites the stored row instead of adding another.
// discriminator separates distinct readings that share a timestamp; an empty
// discriminator keeps the id derived from the timestamp alone.
func ReadingID(deviceID, source string, metricType domain.MetricType, timestamp time.Time, discriminator string) string {
	parts := []string{deviceID, source, string(metricType), timestamp.UTC().Format(time.RFC3339Nano)}
	if discriminator != "" {
		parts = append(parts, discriminator)
	}
	return uuid.NewSHA1(readingNamespace, []byte(strings.Join(parts, "|"))).String()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, ErrMissingTimestamp
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, ErrMissingTimestamp
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	case float64:
		return fromEpoch(int64(v)), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v.String())
		}
		return fromEpoch(n), nil
	case time.Time:
		if v.IsZero() {
			return time.Time{}, ErrMissingTimestamp
		}
		return v.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", raw)
	}
}

// epochSecondsLimit separates epoch seconds from epoch milliseconds. 1e11
// seconds is in the year 5138 while 1e11 milliseconds is in March 1973.
const epochSecondsLimit = 1e11

func fromEpoch(n int64) time.Time {
	if n > -epochSecondsLimit && n < epochSecondsLimit {
		return time.Unix(n, 0).UTC()
	}
	return time.UnixMilli(n).UTC()
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, ErrInvalidValue
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, ErrInvalidValue
		}
		return f, nil
	default:
		return 0, ErrInvalidValue
	}
}
