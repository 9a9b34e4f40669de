package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/service"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
)

// hiddenMessage is the one body for missing and hidden containers
const hiddenMessage = "container not found"

// fail writes the JSON error for a service error. With hide set, a
// Forbidden answer becomes a 404 so callers cannot discover containers
// they may not see.
func (h *Handler) fail(c echo.Context, err error, hide bool) error {
	log := logger.FromContext(c)

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, service.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user"})
	case errors.Is(err, service.ErrForbidden):
		if hide && h.hideForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": hiddenMessage})
		}
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		if hide && h.hideForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": hiddenMessage})
		}
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}

	log.Error("Request failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": message})
}
