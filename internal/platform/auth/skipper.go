package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths reachable without a bearer token.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/api/v1/auth/login": true,
}

// AuthSkipper returns true for requests whose path should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path bypasses authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
