package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/auth"
)

// Audit logs every change made through the API (create, update, delete and
// custom actions) and every document download: who, which resource and
// record, and the outcome.
func Audit(logger zerolog.Logger, prefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, prefix+"/") || !audited(req.Method, path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			resource, id := splitResourcePath(strings.TrimPrefix(path, prefix+"/"))
			rid, _ := c.Get("request_id").(string)
			ctx := req.Context()

			logger.Info().
				Str("type", "audit").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Str("username", auth.UsernameFromContext(ctx)).
				Strs("roles", auth.RolesFromContext(ctx)).
				Str("action", actionOf(req.Method, path)).
				Str("resource", resource).
				Str("record_id", id).
				Int("status", status).
				Str("remote_ip", c.RealIP()).
				Msg("audit")

			return err
		}
	}
}

func audited(method, path string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return !strings.HasSuffix(path, "/auth/login")
	case http.MethodGet:
		return strings.HasSuffix(path, "/content")
	}
	return false
}

func actionOf(method, path string) string {
	switch method {
	case http.MethodGet:
		return "download"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if last := segs[len(segs)-1]; len(segs) > 1 && !isUUID(last) && isUUID(segs[len(segs)-2]) {
		return last
	}
	return "create"
}

// splitResourcePath returns the resource and the first record ID of a path
// relative to the API prefix: "wards/<id>/beds" yields "wards" and <id>.
func splitResourcePath(rel string) (string, string) {
	segs := strings.Split(strings.Trim(rel, "/"), "/")
	resource := segs[0]
	for _, s := range segs[1:] {
		if isUUID(s) {
			return resource, s
		}
	}
	return resource, ""
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
