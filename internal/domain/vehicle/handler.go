package vehicle

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/dynform"
)

type Handler struct {
	*crud.Handler[Vehicle]
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Handler: crud.NewHandler[Vehicle](Definition, svc), svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	h.Handler.RegisterRoutes(api)
	g := api.Group("/"+Definition.Name, crud.RoleGuard(editRoles)...)
	g.POST("/:id/dispatch", h.Dispatch)
	g.POST("/:id/return", h.Return)
}

func (h *Handler) Dispatch(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	values, err := dynform.Decode(c.Request(), DispatchForm, dynform.ModeCreate)
	if err != nil {
		return crud.HTTPError(err)
	}
	driver, _ := values["driver_name"].(string)
	v, err := h.svc.Dispatch(c.Request().Context(), id, driver)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Return(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	values, err := dynform.Decode(c.Request(), ReturnForm, dynform.ModeCreate)
	if err != nil {
		return crud.HTTPError(err)
	}
	mileage, _ := values["mileage_km"].(float64)
	v, err := h.svc.Return(c.Request().Context(), id, mileage)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}
