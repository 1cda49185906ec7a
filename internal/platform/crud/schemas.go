package crud

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/auth"
)

// SchemaHandler serves the form, grid and filter descriptions of every
// resource in a catalog, trimmed to the row actions of the caller.
type SchemaHandler struct {
	catalog *Catalog
}

func NewSchemaHandler(catalog *Catalog) *SchemaHandler {
	return &SchemaHandler{catalog: catalog}
}

func (h *SchemaHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/schemas")
	g.GET("", h.List)
	g.GET("/:resource", h.Get)
}

// List returns the descriptions of the resources the caller may read.
func (h *SchemaHandler) List(c echo.Context) error {
	roles := auth.RolesFromContext(c.Request().Context())
	out := make([]Description, 0)
	for _, name := range h.catalog.Names() {
		d, _ := h.catalog.Get(name)
		if len(d.ReadRoles) > 0 && !auth.HasAnyRole(roles, d.ReadRoles...) {
			continue
		}
		out = append(out, d.Describe(roles))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": out, "total": len(out)})
}

func (h *SchemaHandler) Get(c echo.Context) error {
	d, ok := h.catalog.Get(c.Param("resource"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown resource")
	}
	roles := auth.RolesFromContext(c.Request().Context())
	if len(d.ReadRoles) > 0 && !auth.HasAnyRole(roles, d.ReadRoles...) {
		return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
	}
	return c.JSON(http.StatusOK, d.Describe(roles))
}
