package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/wearable-sync/internal/aggregator"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/dto"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
	"github.com/prperemyshlev/wearable-sync/internal/service"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/internal/vendor"
	"github.com/prperemyshlev/wearable-sync/pkg/apiclient"
)

// DeviceHandler handles device registration, sync and metrics requests
type DeviceHandler struct {
	syncService service.SyncService
	locker      service.DeviceLocker
	now         func() time.Time
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(syncService service.SyncService, locker service.DeviceLocker) *DeviceHandler {
	return &DeviceHandler{
		syncService: syncService,
		locker:      locker,
		now:         time.Now,
	}
}

// Register handles device registration
// @Summary Register a wearable device
// @Tags devices
// @Accept json
// @Produce json
// @Param request body dto.RegisterDeviceRequest true "Registration request"
// @Success 201 {object} dto.DeviceResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /devices [post]
func (h *DeviceHandler) Register(c *gin.Context) {
	var req dto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = c.GetString(subjectKey)
	}

	device := domain.WearableDevice{
		ID:              req.ID,
		UserID:          userID,
		Type:            domain.DeviceType(req.Type),
		Manufacturer:    req.Manufacturer,
		Model:           req.Model,
		FirmwareVersion: req.FirmwareVersion,
		IsActive:        true,
		SyncStatus:      domain.SyncStatusPending,
		RegisteredAt:    h.now(),
		Metadata:        req.Metadata,
	}

	registered, err := h.syncService.RegisterDevice(c.Request.Context(), device)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewDeviceResponse(registered))
}

// Get returns a device
// @Summary Get a device
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} dto.DeviceResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /devices/{id} [get]
func (h *DeviceHandler) Get(c *gin.Context) {
	device, err := h.syncService.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewDeviceResponse(device))
}

// Sync runs a sync for the device while holding its lock.
// A completed attempt returns 200 with the result, whether or not it succeeded.
// @Summary Sync device data
// @Tags devices
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Param request body dto.SyncRequest false "Sync window and metric types"
// @Success 200 {object} domain.SyncResult
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /devices/{id}/sync [post]
func (h *DeviceHandler) Sync(c *gin.Context) {
	var req dto.SyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Validation failed",
				Message: err.Error(),
			})
			return
		}
	}

	opts, err := syncOptions(req)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	deviceID := c.Param("id")

	device, err := h.syncService.GetDevice(ctx, deviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !device.IsActive {
		writeError(c, service.ErrDeviceInactive)
		return
	}

	result, err := service.SyncLocked(ctx, h.locker, h.syncService, deviceID, opts)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RefreshToken refreshes the device's vendor OAuth token
// @Summary Refresh vendor token
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} dto.DeviceResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /devices/{id}/token/refresh [post]
func (h *DeviceHandler) RefreshToken(c *gin.Context) {
	device, err := h.syncService.RefreshDeviceToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewDeviceResponse(device))
}

// DailyMetric returns the daily aggregate of one metric type
// @Summary Daily metric aggregate
// @Tags metrics
// @Produce json
// @Param id path string true "Device ID"
// @Param date query string true "Day (YYYY-MM-DD, UTC)"
// @Param type query string true "Metric type"
// @Success 200 {object} dto.MetricResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /devices/{id}/metrics/daily [get]
func (h *DeviceHandler) DailyMetric(c *gin.Context) {
	var query dto.DailyMetricQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	date, err := time.Parse(time.DateOnly, query.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: "date must be formatted as YYYY-MM-DD",
		})
		return
	}

	daily, err := h.syncService.AggregateMetrics(c.Request.Context(), c.Param("id"), date, domain.MetricType(query.Type))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMetricResponse(daily))
}

func syncOptions(req dto.SyncRequest) (domain.SyncOptions, error) {
	opts := domain.SyncOptions{StartDate: req.StartDate, EndDate: req.EndDate}

	var problems []string
	for _, raw := range req.MetricTypes {
		t := domain.MetricType(raw)
		if !t.IsValid() {
			problems = append(problems, "Invalid metric type: "+raw)
			continue
		}
		opts.MetricTypes = append(opts.MetricTypes, t)
	}
	if opts.StartDate != nil && opts.EndDate != nil && opts.EndDate.Before(*opts.StartDate) {
		problems = append(problems, "End date must not be before start date")
	}

	if len(problems) > 0 {
		return opts, &utils.ValidationError{Subject: "sync request", Errors: problems}
	}
	return opts, nil
}

// writeError maps service errors onto HTTP responses
func writeError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	var httpErr *apiclient.HTTPError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: validationErr.Error(),
			Details: validationErr.Errors,
		})
	case errors.Is(err, service.ErrDeviceNotFound), errors.Is(err, aggregator.ErrNoData):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "Not found",
			Message: err.Error(),
		})
	case errors.Is(err, repository.ErrDuplicateDevice), errors.Is(err, service.ErrDeviceLocked):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "Conflict",
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrDeviceInactive),
		errors.Is(err, service.ErrNoRefreshToken),
		errors.Is(err, service.ErrUnsupportedDeviceType):
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error:   "Unprocessable entity",
			Message: err.Error(),
		})
	case errors.Is(err, apiclient.ErrCircuitOpen),
		errors.Is(err, apiclient.ErrUpstreamUnavailable),
		errors.Is(err, vendor.ErrMissingAccessToken),
		errors.As(err, &httpErr):
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "Bad gateway",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: "Failed to process request",
		})
	}
}
