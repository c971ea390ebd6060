package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/internal/repository"
	"github.com/jmehdipour/agency-crm/internal/service/crm"
	"github.com/jmehdipour/agency-crm/internal/service/report"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func topClientsHandler(svc *report.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		rows, err := svc.TopClients(c.Request().Context())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, rows)
	}
}

func topClientHandler(svc *report.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		row, ok, err := svc.TopClient(c.Request().Context())
		if err != nil {
			return writeError(c, err)
		}
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no clients"})
		}
		return c.JSON(http.StatusOK, row)
	}
}

// billHistoryHandler lists an agency's client bill events from ClickHouse.
// chRepo is nil when ClickHouse is not configured.
func billHistoryHandler(crmSvc *crm.Service, chRepo repository.BillEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if chRepo == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "bill history unavailable"})
		}

		ctx := c.Request().Context()
		agencyID := c.Param("id")
		if _, err := crmSvc.GetAgency(ctx, agencyID); err != nil {
			return writeError(c, err)
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}
		clientID := strings.TrimSpace(c.QueryParam("clientId"))

		events, err := chRepo.ListByAgency(ctx, agencyID, clientID, limit, offset)
		if err != nil {
			logger.Log.Error("clickhouse list failed", zap.String("agency_id", agencyID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(events),
			"results": events,
		})
	}
}
