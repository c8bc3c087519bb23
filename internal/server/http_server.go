package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sapi "go.curalink.io/qrlogin/api/echo"
	"go.curalink.io/qrlogin/config"
	"go.curalink.io/qrlogin/log"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func() error

// NewHTTPServer creates and configures the echo HTTP server.
func NewHTTPServer(
	cfg *config.ServerConfig,
	appLogger log.Logger,
	api *sapi.HandshakeAPI,
	registry *prometheus.Registry,
	health HealthChecker,
) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())

	// Request logging through the app logger interface.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := map[string]interface{}{
				"method":  c.Request().Method,
				"path":    c.Request().URL.Path,
				"status":  c.Response().Status,
				"latency": time.Since(start).String(),
				"ip":      c.RealIP(),
			}
			if err != nil {
				appLogger.Error(c.Request().Context(), "http request", err, fields)
			} else {
				appLogger.Info(c.Request().Context(), "http request", fields)
			}

			return err
		}
	})

	api.RegisterRoutes(e)

	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	e.GET("/healthz", func(c echo.Context) error {
		if health != nil {
			if err := health(); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		// Long-lived websocket subscriptions live on this server; no
		// write timeout, idle governs dead connections instead.
		IdleTimeout:  120 * time.Second,
	}
}
