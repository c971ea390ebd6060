package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/internal/service/crm"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and hidden behind a generic 500.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, crm.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, crm.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, crm.ErrConflict):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, crm.ErrBootstrapClosed):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing or invalid authorization header"})
	}

	logger.Log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err),
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
}
