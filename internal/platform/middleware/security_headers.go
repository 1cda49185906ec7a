package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets the response headers of a JSON API that serves
// patient records.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// No MIME type sniffing
			h.Set("X-Content-Type-Options", "nosniff")

			// No framing of API responses
			h.Set("X-Frame-Options", "DENY")

			// The legacy XSS filter stays off; the CSP below applies.
			h.Set("X-XSS-Protection", "0")

			// A JSON API loads nothing and is never embedded.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			// HSTS for one year, subdomains included.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			// Links out of the dashboard carry no Referer.
			h.Set("Referrer-Policy", "no-referrer")

			// Browser features the dashboard API never uses.
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Patient data must not be cached.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
