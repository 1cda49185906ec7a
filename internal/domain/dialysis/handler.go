package dialysis

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/dynform"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type Handler struct {
	*crud.Handler[Session]
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Handler: crud.NewHandler[Session](Definition, svc), svc: svc}
}

// RegisterRoutes adds the session transitions to the CRUD routes:
//
//	POST /dialysis-sessions/:id/start     {weight_kg, blood_pressure, notes}
//	POST /dialysis-sessions/:id/complete  {weight_kg, blood_pressure, notes}
//	POST /dialysis-sessions/:id/cancel    {reason}
func (h *Handler) RegisterRoutes(api *echo.Group) {
	h.Handler.RegisterRoutes(api)
	g := api.Group("/"+Definition.Name, crud.RoleGuard(editRoles)...)
	g.POST("/:id/start", h.Start)
	g.POST("/:id/complete", h.Complete)
	g.POST("/:id/cancel", h.Cancel)
}

func decodeVitals(c echo.Context, v *formschema.Validator) (Vitals, error) {
	var out Vitals
	values, err := dynform.Decode(c.Request(), v, dynform.ModeCreate)
	if err != nil {
		return out, crud.HTTPError(err)
	}
	if err := formschema.Bind(values, &out); err != nil {
		return out, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return out, nil
}

func (h *Handler) Start(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	v, err := decodeVitals(c, StartForm)
	if err != nil {
		return err
	}
	sess, err := h.svc.Start(c.Request().Context(), id, v)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	v, err := decodeVitals(c, CompleteForm)
	if err != nil {
		return err
	}
	sess, err := h.svc.Complete(c.Request().Context(), id, v)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	values, err := dynform.Decode(c.Request(), CancelForm, dynform.ModeCreate)
	if err != nil {
		return crud.HTTPError(err)
	}
	reason, _ := values["reason"].(string)
	sess, err := h.svc.Cancel(c.Request().Context(), id, reason)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}
