// Package aggregator collapses a day of same-type metrics into one daily value.
package aggregator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// ErrNoData is returned when no metrics of the requested type are available
var ErrNoData = errors.New("no data for metric type")

// Aggregation kinds recorded in metadata.aggregationType
const (
	AggregationSum     = "sum"
	AggregationAverage = "average"
)

// Aggregator computes daily aggregates
type Aggregator struct {
	Now func() time.Time
}

// New creates an aggregator using the wall clock
func New() *Aggregator {
	return &Aggregator{Now: time.Now}
}

// DailyID returns the deterministic id of the aggregate for metricType on day
func DailyID(metricType domain.MetricType, day time.Time) string {
	return fmt.Sprintf("daily_%s_%s", metricType, day.Format("2006-01-02"))
}

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AggregateDaily sums cumulative types and averages (rounded) instantaneous ones
func (a *Aggregator) AggregateDaily(metrics []domain.HealthMetric, metricType domain.MetricType) (domain.HealthMetric, error) {
	filtered := make([]domain.HealthMetric, 0, len(metrics))
	for _, m := range metrics {
		if m.Type == metricType {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		return domain.HealthMetric{}, fmt.Errorf("%w: %s", ErrNoData, metricType)
	}

	var total float64
	for _, m := range filtered {
		total += m.Value
	}

	value := total
	aggregationType := AggregationSum
	if !metricType.IsCumulative() {
		value = math.Round(total / float64(len(filtered)))
		aggregationType = AggregationAverage
	}

	first := filtered[0]
	day := StartOfDay(first.Timestamp)

	return domain.HealthMetric{
		ID:        DailyID(metricType, day),
		DeviceID:  first.DeviceID,
		Type:      metricType,
		Value:     value,
		Unit:      first.Unit,
		Timestamp: day,
		Metadata: map[string]any{
			"aggregationType":   aggregationType,
			"sourceMetricCount": len(filtered),
			"aggregatedAt":      a.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}
