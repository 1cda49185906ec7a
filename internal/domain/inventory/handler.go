package inventory

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/dynform"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type Handler struct {
	*crud.Handler[Item]
	movements *crud.Handler[Movement]
	svc       *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		Handler:   crud.NewHandler[Item](Definition, svc),
		movements: crud.NewHandler[Movement](MovementDefinition, svc.Movements),
		svc:       svc,
	}
}

// RegisterRoutes adds to the item CRUD routes:
//
//	GET  /inventory/low-stock
//	GET  /inventory/:id/movements
//	POST /inventory/:id/adjust   {kind, quantity, reason}
//	GET  /stock-movements[/:id]
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/"+Definition.Name, crud.RoleGuard(Definition.ReadRoles)...)
	read.GET("/low-stock", h.LowStock)
	read.GET("/:id/movements", h.History)
	h.Handler.RegisterRoutes(api)
	h.movements.RegisterRoutes(api)

	api.POST("/"+Definition.Name+"/:id/adjust", h.Adjust, crud.RoleGuard(editRoles)...)
}

func (h *Handler) LowStock(c echo.Context) error {
	p, err := crud.ParseList(c, Definition)
	if err != nil {
		return err
	}
	rows, total, err := h.svc.LowStock(c.Request().Context(), p)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, crud.NewPage(c, Definition, rows, total, p))
}

func (h *Handler) History(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	p, err := crud.ParseList(c, MovementDefinition)
	if err != nil {
		return err
	}
	rows, total, err := h.svc.History(c.Request().Context(), id, p)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, crud.NewPage(c, MovementDefinition, rows, total, p))
}

func (h *Handler) Adjust(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	values, err := dynform.Decode(c.Request(), AdjustForm, dynform.ModeCreate)
	if err != nil {
		return crud.HTTPError(err)
	}
	var a Adjustment
	if err := formschema.Bind(values, &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	it, err := h.svc.Adjust(c.Request().Context(), id, a)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, it)
}
