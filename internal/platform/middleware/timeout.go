package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on each request context. Handlers observe
// it through their context; a handler still running when it passes gets a
// 504 response. Requests for which skip returns true run without deadline.
func RequestTimeout(timeout time.Duration, skip func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Skipped requests, such as document uploads and downloads, run
			// without a deadline.
			if timeout <= 0 || (skip != nil && skip(c)) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			// Only a deadline earns a 504. A client disconnect returns the
			// handler's own error, and a response already started is left
			// as written.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out").SetInternal(err)
			}
			return err
		}
	}
}
