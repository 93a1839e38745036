package utils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// ValidationResult carries the outcome of a device or metric validation
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

func (r *ValidationResult) add(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// ValidationError is returned by callers that need to propagate a failed result as an error
type ValidationError struct {
	Subject string
	Errors  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Errors, "; "))
}

// Err converts a failed result into a *ValidationError, or returns nil if the result is valid
func (r ValidationResult) Err(subject string) error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Subject: subject, Errors: r.Errors}
}

// rangeRule bounds a metric type to an inclusive physiological range
type rangeRule struct {
	min     float64
	max     float64
	message string
}

var metricRules = map[domain.MetricType]rangeRule{
	domain.MetricTypeHeartRate:       {min: 30, max: 220, message: "Heart rate must be between 30 and 220 bpm"},
	domain.MetricTypeSteps:           {min: 0, max: 100000, message: "Steps must be between 0 and 100,000"},
	domain.MetricTypeBloodOxygen:     {min: 70, max: 100, message: "Blood oxygen must be between 70% and 100%"},
	domain.MetricTypeBodyTemperature: {min: 90, max: 110, message: "Body temperature must be between 90°F and 110°F"},
	domain.MetricTypeWeight:          {min: 20, max: 1000, message: "Weight must be between 20kg and 1000kg"},
}

// FutureTimestampMessage is reported for metrics observed after validation time
const FutureTimestampMessage = "Timestamp cannot be in the future"

// Validator checks devices and metrics against structural and domain rules
type Validator struct {
	Now func() time.Time
}

// NewValidator creates a validator using the wall clock
func NewValidator() *Validator {
	return &Validator{Now: time.Now}
}

var defaultValidator = NewValidator()

// ValidateDevice validates a device with the default validator
func ValidateDevice(device domain.WearableDevice) ValidationResult {
	return defaultValidator.ValidateDevice(device)
}

// ValidateMetric validates a metric with the default validator
func ValidateMetric(metric domain.HealthMetric) ValidationResult {
	return defaultValidator.ValidateMetric(metric)
}

// ValidateDevice checks that all required device fields are present and well-typed
func (v *Validator) ValidateDevice(device domain.WearableDevice) ValidationResult {
	result := ValidationResult{IsValid: true, Errors: []string{}}

	if strings.TrimSpace(device.ID) == "" {
		result.add("Device ID is required")
	}
	if strings.TrimSpace(device.UserID) == "" {
		result.add("User ID is required")
	}
	if device.Type == "" {
		result.add("Device type is required")
	} else if !device.Type.IsValid() {
		result.add(fmt.Sprintf("Invalid device type: %s", device.Type))
	}
	if strings.TrimSpace(device.Manufacturer) == "" {
		result.add("Manufacturer is required")
	}
	if strings.TrimSpace(device.Model) == "" {
		result.add("Model is required")
	}
	if strings.TrimSpace(device.FirmwareVersion) == "" {
		result.add("Firmware version is required")
	}
	if device.SyncStatus == "" {
		result.add("Sync status is required")
	} else if !device.SyncStatus.IsValid() {
		result.add(fmt.Sprintf("Invalid sync status: %s", device.SyncStatus))
	}
	if device.RegisteredAt.IsZero() {
		result.add("Registration date is required")
	}

	return result
}

// ValidateMetric checks required metric fields, then applies the per-type range rules
func (v *Validator) ValidateMetric(metric domain.HealthMetric) ValidationResult {
	result := ValidationResult{IsValid: true, Errors: []string{}}

	if strings.TrimSpace(metric.ID) == "" {
		result.add("Metric ID is required")
	}
	if strings.TrimSpace(metric.DeviceID) == "" {
		result.add("Device ID is required")
	}
	if metric.Type == "" {
		result.add("Metric type is required")
	} else if !metric.Type.IsValid() {
		result.add(fmt.Sprintf("Invalid metric type: %s", metric.Type))
	}
	if math.IsNaN(metric.Value) || math.IsInf(metric.Value, 0) {
		result.add("Metric value must be a finite number")
	}
	if strings.TrimSpace(metric.Unit) == "" {
		result.add("Unit is required")
	}
	if metric.Timestamp.IsZero() {
		result.add("Timestamp is required")
	} else if metric.Timestamp.After(v.Now()) {
		result.add(FutureTimestampMessage)
	}
	if c := metric.Confidence; c != nil && (math.IsNaN(*c) || *c < 0 || *c > 1) {
		result.add("Confidence must be between 0 and 1")
	}

	if rule, ok := metricRules[metric.Type]; ok {
		if metric.Value < rule.min || metric.Value > rule.max {
			result.add(rule.message)
		}
	}

	return result
}
