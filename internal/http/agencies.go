package http

import (
	"net/http"

	"github.com/jmehdipour/agency-crm/internal/http/middleware"
	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmehdipour/agency-crm/internal/service/crm"
	echo "github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type agencyReq struct {
	Name        string `json:"name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	State       string `json:"state"`
	City        string `json:"city"`
	PhoneNumber string `json:"phoneNumber"`
}

func (r agencyReq) fields() model.AgencyFields {
	return model.AgencyFields{
		Name:        r.Name,
		Address1:    r.Address1,
		Address2:    r.Address2,
		State:       r.State,
		City:        r.City,
		PhoneNumber: r.PhoneNumber,
	}
}

// createAgencyReq carries the agency plus its first client.
type createAgencyReq struct {
	agencyReq
	ClientName        string           `json:"clientName"`
	Email             string           `json:"email"`
	ClientPhoneNumber string           `json:"clientPhoneNumber"`
	TotalBill         *decimal.Decimal `json:"totalBill"`
}

type createAgencyResp struct {
	Agency model.Agency `json:"agency"`
	Client model.Client `json:"client"`
}

func createAgencyHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createAgencyReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c)
		}

		create := svc.CreateAgency
		if middleware.IsBootstrap(c) {
			create = svc.BootstrapAgency
		}
		a, cl, err := create(c.Request().Context(), req.fields(), model.ClientFields{
			Name:        req.ClientName,
			Email:       req.Email,
			PhoneNumber: req.ClientPhoneNumber,
			TotalBill:   req.TotalBill,
		})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, createAgencyResp{Agency: a, Client: cl})
	}
}

func listAgenciesHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := svc.ListAgencies(c.Request().Context())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, list)
	}
}

func getAgencyHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		a, err := svc.GetAgency(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, a)
	}
}

func updateAgencyHandler(svc *crm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req agencyReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c)
		}

		a, err := svc.UpdateAgency(c.Request().Context(), c.Param("id"), req.fields())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, a)
	}
}
