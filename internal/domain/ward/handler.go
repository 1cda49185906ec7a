package ward

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
)

type Handler struct {
	svc   *Service
	wards *crud.Handler[Ward]
	beds  *crud.Handler[Bed]
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:   svc,
		wards: crud.NewHandler[Ward](Definition, svc.WardService()),
		beds:  crud.NewHandler[Bed](BedDefinition, svc.Beds),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	h.wards.RegisterRoutes(api)
	h.beds.RegisterRoutes(api)

	read := api.Group("/wards", crud.RoleGuard(Definition.ReadRoles)...)
	read.GET("/:id/beds", h.ListWardBeds)
	read.GET("/:id/occupancy", h.Occupancy)

	roles, _ := BedDefinition.RolesFor(datatable.ActionEdit)
	write := api.Group("/beds", crud.RoleGuard(roles)...)
	write.POST("/:id/assign", h.Assign)
	write.POST("/:id/release", h.Release)
}

func (h *Handler) ListWardBeds(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	p, err := crud.ParseList(c, BedDefinition)
	if err != nil {
		return err
	}
	p.Where = map[string]any{"ward_id": id}
	rows, total, err := h.svc.Beds.List(c.Request().Context(), p)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, crud.NewPage(c, BedDefinition, rows, total, p))
}

func (h *Handler) Occupancy(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Occupancy(c.Request().Context(), id)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

type assignRequest struct {
	PatientID string `json:"patient_id"`
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	b, err := h.svc.Assign(c.Request().Context(), id, patientID)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Release(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	b, err := h.svc.Release(c.Request().Context(), id)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}
