package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/prometheus"
)

// HealthCheck handles the health check endpoint
func HealthCheck(serviceName string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "healthy",
			"service": serviceName,
		})
	}
}

// MetricsHandler exposes the Prometheus registry
var MetricsHandler = echo.WrapHandler(prometheus.GetPrometheusHandler())
