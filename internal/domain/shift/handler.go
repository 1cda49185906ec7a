package shift

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/crud"
)

type Handler struct {
	*crud.Handler[Shift]
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Handler: crud.NewHandler[Shift](Definition, svc), svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/"+Definition.Name+"/on-duty", h.OnDuty, crud.RoleGuard(Definition.ReadRoles)...)
	h.Handler.RegisterRoutes(api)
}

// OnDuty lists the shifts running at ?at (RFC 3339), or now.
func (h *Handler) OnDuty(c echo.Context) error {
	at := time.Now().UTC()
	if raw := c.QueryParam("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "at must be an RFC 3339 timestamp")
		}
		at = t
	}
	rows, err := h.svc.OnDuty(c.Request().Context(), at)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": rows, "total": len(rows)})
}
