package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels for sync and token refresh instruments
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}

// SyncMetrics holds the instruments recorded by the sync orchestrator
type SyncMetrics struct {
	attempts  metric.Int64Counter
	ingested  metric.Int64Counter
	duration  metric.Float64Histogram
	refreshes metric.Int64Counter
}

// NewSyncMetrics registers the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	attempts, err := meter.Int64Counter("wearable_sync_attempts",
		metric.WithDescription("Device sync attempts by vendor and outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sync attempts counter: %w", err)
	}

	ingested, err := meter.Int64Counter("wearable_sync_metrics_ingested",
		metric.WithDescription("Health metrics persisted by successful syncs"))
	if err != nil {
		return nil, fmt.Errorf("failed to create ingested metrics counter: %w", err)
	}

	duration, err := meter.Float64Histogram("wearable_sync_duration",
		metric.WithDescription("Duration of device sync attempts"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sync duration histogram: %w", err)
	}

	refreshes, err := meter.Int64Counter("wearable_token_refresh",
		metric.WithDescription("Vendor token refreshes by vendor and outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create token refresh counter: %w", err)
	}

	return &SyncMetrics{
		attempts:  attempts,
		ingested:  ingested,
		duration:  duration,
		refreshes: refreshes,
	}, nil
}

// RecordSync records one sync attempt
func (m *SyncMetrics) RecordSync(ctx context.Context, vendor, outcome string, metricsCount int, elapsed time.Duration) {
	vendorAttr := attribute.String("vendor", vendor)

	m.attempts.Add(ctx, 1, metric.WithAttributes(vendorAttr, attribute.String("outcome", outcome)))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(vendorAttr))
	if metricsCount > 0 {
		m.ingested.Add(ctx, int64(metricsCount), metric.WithAttributes(vendorAttr))
	}
}

// RecordTokenRefresh records one token refresh attempt
func (m *SyncMetrics) RecordTokenRefresh(ctx context.Context, vendor, outcome string) {
	m.refreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("vendor", vendor),
		attribute.String("outcome", outcome),
	))
}
