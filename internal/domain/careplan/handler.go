package careplan

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careplan/intake/internal/platform/apperror"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/generate-care-plan", h.Generate)
	api.GET("/care-plans/:id", h.GetCarePlan)
	api.GET("/care-plans/:id/document", h.GetDocument)
	api.GET("/orders/:id/care-plans", h.ListForOrder)
}

type generateRequest struct {
	OrderID string `json:"orderId"`
}

func (h *Handler) Generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	raw := strings.TrimSpace(req.OrderID)
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Order ID is required")
	}
	// A malformed id cannot name an existing order.
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return apperror.NotFound(msgOrderNotFound)
	}

	cp, err := h.svc.GenerateForOrder(c.Request().Context(), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"carePlan": map[string]string{
			"id":      cp.ID.String(),
			"content": cp.Content,
		},
	})
}

func (h *Handler) GetCarePlan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NotFound(msgCarePlanNotFound)
	}
	cp, err := h.svc.GetCarePlan(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cp)
}

func (h *Handler) ListForOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NotFound(msgOrderNotFound)
	}
	plans, err := h.svc.ListForOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if plans == nil {
		plans = []*CarePlan{}
	}
	return c.JSON(http.StatusOK, plans)
}

func (h *Handler) GetDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NotFound(msgCarePlanNotFound)
	}
	rc, meta, err := h.svc.OpenDocument(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer rc.Close()

	contentType := "text/plain"
	if meta != nil {
		if meta.ContentType != "" {
			contentType = meta.ContentType
		}
		if meta.Hash != "" {
			c.Response().Header().Set("ETag", `"`+meta.Hash+`"`)
		}
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="care-plan-`+id.String()+`.txt"`)
	return c.Stream(http.StatusOK, contentType+"; charset=utf-8", rc)
}
