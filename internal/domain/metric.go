package domain

import (
	"time"

	"github.com/google/uuid"
)

// MetricType identifies the physiological quantity a metric observes
type MetricType string

const (
	MetricTypeHeartRate       MetricType = "heart_rate"
	MetricTypeSteps           MetricType = "steps"
	MetricTypeSleepDuration   MetricType = "sleep_duration"
	MetricTypeCaloriesBurned  MetricType = "calories_burned"
	MetricTypeDistance        MetricType = "distance"
	MetricTypeBloodOxygen     MetricType = "blood_oxygen"
	MetricTypeBloodPressure   MetricType = "blood_pressure"
	MetricTypeWeight          MetricType = "weight"
	MetricTypeBodyTemperature MetricType = "body_temperature"
)

var defaultUnits = map[MetricType]string{
	MetricTypeHeartRate:       "bpm",
	MetricTypeSteps:           "steps",
	MetricTypeSleepDuration:   "minutes",
	MetricTypeCaloriesBurned:  "kcal",
	MetricTypeDistance:        "km",
	MetricTypeBloodOxygen:     "%",
	MetricTypeBloodPressure:   "mmHg",
	MetricTypeWeight:          "kg",
	MetricTypeBodyTemperature: "°F",
}

// IsValid reports whether t is one of the known metric types
func (t MetricType) IsValid() bool {
	_, ok := defaultUnits[t]
	return ok
}

// IsCumulative reports whether a daily total of t is meaningful (as opposed to a daily average)
func (t MetricType) IsCumulative() bool {
	switch t {
	case MetricTypeSteps, MetricTypeCaloriesBurned, MetricTypeDistance:
		return true
	}
	return false
}

// DefaultUnit returns the canonical unit for t
func (t MetricType) DefaultUnit() string {
	return defaultUnits[t]
}

// HealthMetric represents one observation of one quantity at one instant
type HealthMetric struct {
	ID         string         `json:"id" db:"id"`
	DeviceID   string         `json:"device_id" db:"device_id"`
	Type       MetricType     `json:"type" db:"type"`
	Value      float64        `json:"value" db:"value"`
	Unit       string         `json:"unit" db:"unit"`
	Timestamp  time.Time      `json:"timestamp" db:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"`
	Source     string         `json:"source,omitempty" db:"source"`
	Confidence *float64       `json:"confidence,omitempty" db:"confidence"`
}

// NewHealthMetric creates a metric with a fresh id. A zero timestamp defaults to now.
func NewHealthMetric(deviceID string, metricType MetricType, value float64, unit string, timestamp time.Time, metadata map[string]any) HealthMetric {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	return HealthMetric{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Type:      metricType,
		Value:     value,
		Unit:      unit,
		Timestamp: timestamp,
		Metadata:  metadata,
	}
}
