package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type Handler struct {
	*crud.Handler[User]
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Handler: crud.NewHandler[User](Definition, svc), svc: svc}
}

// RegisterRoutes mounts the user administration endpoints and the
// /auth endpoints. loginMW wraps the login route only, typically with a
// stricter rate limit.
func (h *Handler) RegisterRoutes(api *echo.Group, loginMW ...echo.MiddlewareFunc) {
	h.Handler.RegisterRoutes(api)

	g := api.Group("/auth")
	g.POST("/login", h.Login, loginMW...)
	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me)
	g.POST("/password", h.ChangePassword)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	auth.Token
	User *User `json:"user"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	verr := &formschema.ValidationError{}
	if req.Username == "" {
		verr.Add("username", "is required")
	}
	if req.Password == "" {
		verr.Add("password", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return crud.HTTPError(err)
	}
	tok, u, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, loginResponse{Token: tok, User: u})
}

func (h *Handler) Logout(c echo.Context) error {
	h.svc.Logout(auth.ClaimsFromContext(c.Request().Context()))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.Me(c.Request().Context())
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	tok, err := h.svc.ChangePassword(c.Request().Context(), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, tok)
}
