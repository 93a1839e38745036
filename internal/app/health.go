package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// BreakerReporter exposes vendor circuit breaker states
type BreakerReporter interface {
	CircuitBreakerStates() map[string]string
}

type HealthChecker struct {
	infra    Infrastructure
	breakers BreakerReporter
}

func NewHealthChecker(infra Infrastructure, breakers BreakerReporter) *HealthChecker {
	return &HealthChecker{
		infra:    infra,
		breakers: breakers,
	}
}

func (h *HealthChecker) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- h.infra.Postgres().Ping(ctx)
	}()

	go func() {
		errs <- h.infra.Redis().Ping(ctx)
	}()

	return errors.Join(<-errs, <-errs)
}

// Handler reports storage health. An open vendor breaker degrades
// syncs for that vendor only, so it is reported but does not fail the check.
func (h *HealthChecker) Handler(c *gin.Context) {
	breakers := h.breakers.CircuitBreakerStates()

	if err := h.check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "fail",
			"error":    err.Error(),
			"breakers": breakers,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "pass",
		"breakers": breakers,
	})
}
