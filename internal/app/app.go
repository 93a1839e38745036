package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/wearable-sync/internal/config"
	"github.com/prperemyshlev/wearable-sync/internal/handler"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra    Infrastructure
	config   *config.Config
	services *Services
	router   *gin.Engine
	server   *http.Server
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	services, err := NewServices(infra, cfg)
	if err != nil {
		return nil, err
	}

	jwtManager := utils.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry.Duration)
	healthChecker := NewHealthChecker(infra, services.Sync)
	deviceHandler := handler.NewDeviceHandler(services.Sync, services.Locker)

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, deviceHandler, jwtManager, services, healthChecker, infra)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:    infra,
		config:   cfg,
		services: services,
		router:   router,
		server:   srv,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Services() *Services {
	return a.services
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	deviceHandler *handler.DeviceHandler,
	tokenValidator handler.TokenValidator,
	services *Services,
	healthChecker *HealthChecker,
	infra Infrastructure,
) {
	router.GET("/metrics", observability.PrometheusHandler(infra.MetricsHandler()))
	router.GET("/health", healthChecker.Handler)

	limit := cfg.Sync.RateLimitRequests
	window := cfg.Sync.RateLimitWindow.Duration

	api := router.Group("/api/v1", handler.AuthMiddleware(tokenValidator))
	{
		devices := api.Group("/devices")
		{
			devices.POST("",
				handler.RateLimitMiddleware(services.RateLimiter, limit, window, handler.IPBasedKey, infra.Logger()),
				deviceHandler.Register,
			)
			devices.GET("/:id", deviceHandler.Get)
			devices.POST("/:id/sync",
				handler.RateLimitMiddleware(services.RateLimiter, limit, window, handler.DeviceKey, infra.Logger()),
				deviceHandler.Sync,
			)
			devices.POST("/:id/token/refresh", deviceHandler.RefreshToken)
			devices.GET("/:id/metrics/daily", deviceHandler.DailyMetric)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
