package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareCountsRoute(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware())
	e.GET("/things/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	before := testutil.ToFloat64(HTTPRequestCounter.WithLabelValues("/things/:id", http.MethodGet, "204"))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/42", nil))
	after := testutil.ToFloat64(HTTPRequestCounter.WithLabelValues("/things/:id", http.MethodGet, "204"))

	if after-before != 1 {
		t.Errorf("counter moved by %v, want 1", after-before)
	}
}

func TestMetricsMiddlewareUsesHTTPErrorCode(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware())
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestCounter.WithLabelValues("/missing", http.MethodGet, "404"))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	after := testutil.ToFloat64(HTTPRequestCounter.WithLabelValues("/missing", http.MethodGet, "404"))

	if after-before != 1 {
		t.Errorf("404 counter moved by %v, want 1", after-before)
	}
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(EntitlementDenialCounter.WithLabelValues("view", "admin_only"))
	RecordDenial("view", "admin_only")
	if got := testutil.ToFloat64(EntitlementDenialCounter.WithLabelValues("view", "admin_only")); got-before != 1 {
		t.Errorf("denial counter moved by %v", got-before)
	}

	before = testutil.ToFloat64(ContainerViewCounter.WithLabelValues("voice"))
	RecordView("voice")
	if got := testutil.ToFloat64(ContainerViewCounter.WithLabelValues("voice")); got-before != 1 {
		t.Errorf("view counter moved by %v", got-before)
	}
}
