package crud

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/dynform"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Handler serves the REST endpoints of one resource:
//
//	GET    /<name>       list (search, sort, paging, filters)
//	GET    /<name>/:id   view
//	POST   /<name>       create, JSON or multipart
//	PUT    /<name>/:id   update, partial
//	PATCH  /<name>/:id   update, partial
//	DELETE /<name>/:id   delete
//
// Create and update are guarded by the roles of the grid's edit action and
// delete by those of its delete action. An action the grid does not offer is
// not routed.
type Handler[T any] struct {
	def *Definition
	svc Service[T]
}

func NewHandler[T any](def *Definition, svc Service[T]) *Handler[T] {
	return &Handler[T]{def: def, svc: svc}
}

// RoleGuard returns middleware requiring one of roles. No roles means any
// authenticated user.
func RoleGuard(roles []string) []echo.MiddlewareFunc {
	if len(roles) == 0 {
		return nil
	}
	return []echo.MiddlewareFunc{auth.RequireRole(roles...)}
}

func (h *Handler[T]) RegisterRoutes(api *echo.Group) {
	base := "/" + h.def.Name

	read := api.Group(base, RoleGuard(h.def.ReadRoles)...)
	read.GET("", h.List)
	read.GET("/:id", h.Get)

	if roles, ok := h.def.RolesFor(datatable.ActionEdit); ok {
		write := api.Group(base, RoleGuard(roles)...)
		write.POST("", h.Create)
		write.PUT("/:id", h.Update)
		write.PATCH("/:id", h.Update)
	}
	if roles, ok := h.def.RolesFor(datatable.ActionDelete); ok {
		del := api.Group(base, RoleGuard(roles)...)
		del.DELETE("/:id", h.Delete)
	}
}

// ParseID reads the :id path parameter.
func ParseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// ParseList reads the grid query and filter bar values of a list request.
func ParseList(c echo.Context, def *Definition) (ListParams, error) {
	q := c.QueryParams()
	filters, err := def.Filters.Parse(q)
	if err != nil {
		return ListParams{}, HTTPError(err)
	}
	return ListParams{Query: def.Table.ParseQuery(q), Filters: filters}, nil
}

// NewPage wraps a list result with its navigation state and the row actions
// available to the caller.
func NewPage[T any](c echo.Context, def *Definition, rows []*T, total int, p ListParams) datatable.Page[*T] {
	page := datatable.NewPage(rows, total, def.Table.Normalize(p.Query))
	page.Actions = def.Table.ActionsFor(auth.RolesFromContext(c.Request().Context()))
	return page
}

func (h *Handler[T]) List(c echo.Context) error {
	p, err := ParseList(c, h.def)
	if err != nil {
		return err
	}
	rows, total, err := h.svc.List(c.Request().Context(), p)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, NewPage(c, h.def, rows, total, p))
}

func (h *Handler[T]) Get(c echo.Context) error {
	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}
	row, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, row)
}

func (h *Handler[T]) Create(c echo.Context) error {
	values, err := dynform.Decode(c.Request(), h.def.Validator(), dynform.ModeCreate)
	if err != nil {
		return HTTPError(err)
	}
	row, err := h.svc.Create(c.Request().Context(), values)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, row)
}

func (h *Handler[T]) Update(c echo.Context) error {
	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}
	values, err := dynform.Decode(c.Request(), h.def.Validator(), dynform.ModeUpdate)
	if err != nil {
		return HTTPError(err)
	}
	row, err := h.svc.Update(c.Request().Context(), id, values)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, row)
}

func (h *Handler[T]) Delete(c echo.Context) error {
	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Form    []string            `json:"form,omitempty"`
}

// HTTPError maps service errors onto HTTP errors: validation failures to
// 422 with field messages, ErrNotFound to 404, ErrConflict to 409,
// ErrForbidden to 403 and malformed bodies to 400. Anything else is a 500
// that keeps the cause for the request log.
func HTTPError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	if ve, ok := formschema.AsValidationError(err); ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ErrorBody{
			Message: "validation failed",
			Fields:  ve.Fields,
			Form:    ve.Form,
		})
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, dynform.ErrMalformed):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
