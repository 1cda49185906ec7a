package documents

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
)

// Handler serves the document endpoints:
//
//	GET    /documents                 list, ?owner_type=&owner_id= for one row
//	GET    /documents/:id             metadata
//	GET    /documents/:id/download    content
//	POST   /documents                 multipart upload
//	PATCH  /documents/:id             title, category, notes
//	DELETE /documents/:id             metadata and content
type Handler struct {
	*crud.Handler[Document]
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Handler: crud.NewHandler[Document](Definition, svc), svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/documents", crud.RoleGuard(Definition.ReadRoles)...)
	read.GET("", h.List)
	read.GET("/:id", h.Get)
	read.GET("/:id/download", h.Download)

	if roles, ok := Definition.RolesFor(datatable.ActionEdit); ok {
		write := api.Group("/documents", crud.RoleGuard(roles)...)
		write.POST("", h.Create)
		write.PUT("/:id", h.Update)
		write.PATCH("/:id", h.Update)
	}
	if roles, ok := Definition.RolesFor(datatable.ActionDelete); ok {
		api.DELETE("/documents/:id", h.Delete, crud.RoleGuard(roles)...)
	}
}

// List narrows the grid to one owner when owner_id is given.
func (h *Handler) List(c echo.Context) error {
	raw := c.QueryParam("owner_id")
	if raw == "" {
		return h.Handler.List(c)
	}
	ownerID, err := uuid.Parse(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid owner_id")
	}
	ownerType := c.QueryParam("owner_type")
	if ownerType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_type is required with owner_id")
	}
	p, err := crud.ParseList(c, Definition)
	if err != nil {
		return err
	}
	rows, total, err := h.svc.ListByOwner(c.Request().Context(), ownerType, ownerID, p)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, crud.NewPage(c, Definition, rows, total, p))
}

func (h *Handler) Download(c echo.Context) error {
	id, err := crud.ParseID(c, "id")
	if err != nil {
		return err
	}
	doc, rc, err := h.svc.Open(c.Request().Context(), id)
	if err != nil {
		return crud.HTTPError(err)
	}
	defer rc.Close()

	disposition := "attachment"
	if c.QueryParam("inline") == "true" {
		disposition = "inline"
	}
	hdr := c.Response().Header()
	hdr.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": doc.Filename}))
	hdr.Set(echo.HeaderContentLength, strconv.FormatInt(doc.SizeBytes, 10))
	hdr.Set("ETag", `"`+doc.Checksum+`"`)
	return c.Stream(http.StatusOK, doc.ContentType, rc)
}
