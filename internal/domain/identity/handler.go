package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/provider/validate", h.ValidateProvider)
	api.POST("/patient/validate", h.ValidatePatient)
}

func (h *Handler) ValidateProvider(c echo.Context) error {
	var in ProviderInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := in.Validate().Err(); err != nil {
		return err
	}
	if err := h.svc.ValidateProvider(c.Request().Context(), in.Provider()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// ValidatePatient checks only the identity fields; clinical fields in the
// body are ignored.
func (h *Handler) ValidatePatient(c echo.Context) error {
	var in PatientCredentials
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dob, errs := in.Validate()
	if err := errs.Err(); err != nil {
		return err
	}
	if err := h.svc.ValidatePatient(c.Request().Context(), in.Patient(dob)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
