package http

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmehdipour/agency-crm/internal/service/crm"
	echo "github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type clientReq struct {
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	PhoneNumber string           `json:"phoneNumber"`
	TotalBill   *decimal.Decimal `json:"totalBill"`
}

func (r clientReq) fields() model.ClientFields {
	return model.ClientFields{
		Name:        r.Name,
		Email:       r.Email,
		PhoneNumber: r.PhoneNumber,
		TotalBill:   r.TotalBill,
	}
}

type createClientReq struct {
	clientReq
	AgencyID string `json:"agencyId"`
}

func createClientHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createClientReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c)
		}

		cl, err := svc.CreateClient(c.Request().Context(), req.AgencyID, req.fields())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, cl)
	}
}

// listClientsHandler serves both GET /clients?agencyId= and
// GET /clients/:agencyId; the path parameter wins.
func listClientsHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		agencyID := c.Param("agencyId")
		if agencyID == "" {
			agencyID = strings.TrimSpace(c.QueryParam("agencyId"))
		}

		list, err := svc.ListClients(c.Request().Context(), model.ClientFilter{AgencyID: agencyID})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, list)
	}
}

func getAgencyClientHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		agencyID := c.Param("agencyId")

		// a missing agency is reported before the client lookup
		if _, err := svc.GetAgency(ctx, agencyID); err != nil {
			return writeError(c, err)
		}
		cl, err := svc.GetAgencyClient(ctx, agencyID, c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, cl)
	}
}

func updateAgencyClientHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req clientReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c)
		}

		cl, err := svc.UpdateAgencyClient(c.Request().Context(), c.Param("agencyId"), c.Param("id"), req.fields())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, cl)
	}
}

// getClientHandler serves GET /agencies/clients/:clientId.
func getClientHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		cl, err := svc.GetClient(c.Request().Context(), c.Param("clientId"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, cl)
	}
}

// updateClientHandler serves PUT /agencies/clients/:clientId.
func updateClientHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req clientReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c)
		}

		cl, err := svc.UpdateClient(c.Request().Context(), c.Param("clientId"), req.fields())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, cl)
	}
}
