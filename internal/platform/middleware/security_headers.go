package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets the standard protective headers on every response.
// The API serves JSON holding patient data, so the posture is strict: no
// framing, no resource loading, and no caching anywhere between us and the
// caller.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Responses can carry record contents; nothing may cache them.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
