package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin      = "admin"
	RoleDoctor     = "doctor"
	RoleNurse      = "nurse"
	RoleTechnician = "technician"
	RoleClerk      = "clerk"
)

// Roles lists every role a user account may hold.
var Roles = []string{RoleAdmin, RoleDoctor, RoleNurse, RoleTechnician, RoleClerk}

// Clinical is the staff allowed to edit clinical records.
var Clinical = []string{RoleDoctor, RoleNurse}

// HasAnyRole reports whether have grants one of want. Admin grants all.
func HasAnyRole(have []string, want ...string) bool {
	for _, h := range have {
		if h == RoleAdmin {
			return true
		}
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasAnyRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
