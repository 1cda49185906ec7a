package dashboard

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard", h.Get)
}

func (h *Handler) Get(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sum)
}
