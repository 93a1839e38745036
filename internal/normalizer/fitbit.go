package normalizer

import "github.com/prperemyshlev/wearable-sync/internal/domain"

// FitbitSchema maps Fitbit style payloads (kebab-case, "recorded_at")
var FitbitSchema = Schema{
	Source:         SourceFitbit,
	TimestampField: "recorded_at",
	IDField:        "log-id",
	Fields: []FieldMapping{
		{Field: "steps-count", Type: domain.MetricTypeSteps},
		{Field: "heart-rate-bpm", Type: domain.MetricTypeHeartRate},
		{Field: "sleep-duration-minutes", Type: domain.MetricTypeSleepDuration},
		{Field: "calories-out", Type: domain.MetricTypeCaloriesBurned},
		{Field: "distance-km", Type: domain.MetricTypeDistance},
		{Field: "spo2-percent", Type: domain.MetricTypeBloodOxygen},
	},
}

// NormalizeFitbit converts a Fitbit payload into canonical metrics
func NormalizeFitbit(payload map[string]any, deviceID string) ([]domain.HealthMetric, error) {
	return FitbitSchema.Normalize(payload, deviceID)
}
