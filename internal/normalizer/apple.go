package normalizer

import "github.com/prperemyshlev/wearable-sync/internal/domain"

// AppleSchema maps Apple Health style payloads (camelCase, "timestamp")
var AppleSchema = Schema{
	Source:         SourceApple,
	TimestampField: "timestamp",
	IDField:        "uuid",
	Fields: []FieldMapping{
		{Field: "steps", Type: domain.MetricTypeSteps},
		{Field: "heartRate", Type: domain.MetricTypeHeartRate},
		{Field: "sleepDuration", Type: domain.MetricTypeSleepDuration},
		{Field: "activeEnergyBurned", Type: domain.MetricTypeCaloriesBurned},
		{Field: "distanceKm", Type: domain.MetricTypeDistance},
		{Field: "oxygenSaturation", Type: domain.MetricTypeBloodOxygen},
	},
}

// NormalizeApple converts an Apple Health payload into canonical metrics
func NormalizeApple(payload map[string]any, deviceID string) ([]domain.HealthMetric, error) {
	return AppleSchema.Normalize(payload, deviceID)
}
