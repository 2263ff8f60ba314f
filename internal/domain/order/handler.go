package order

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/submit", h.Submit)
	api.GET("/export", h.Export)
}

func (h *Handler) Submit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.svc.Submit(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"warnings": result.Warnings,
		"data":     map[string]string{"orderId": result.Order.ID.String()},
	})
}

// Export streams the order report as CSV, or as a workbook with
// ?format=xlsx.
func (h *Handler) Export(c echo.Context) error {
	rows, err := h.svc.Export(c.Request().Context())
	if err != nil {
		return err
	}

	res := c.Response()
	switch strings.ToLower(c.QueryParam("format")) {
	case "", "csv":
		res.Header().Set(echo.HeaderContentType, "text/csv")
		res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", ExportFilename))
		res.WriteHeader(http.StatusOK)
		return WriteCSV(res, rows)
	case "xlsx":
		res.Header().Set(echo.HeaderContentType, MIMEXLSX)
		res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", ExportXLSXFilename))
		res.WriteHeader(http.StatusOK)
		return WriteXLSX(res, rows)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be csv or xlsx")
	}
}
