package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders adds common security headers to responses. frameAncestors
// lists origins allowed to embed the pages, typically the Partner for launches;
// none denies framing altogether.
func SecurityHeaders(frameAncestors ...string) echo.MiddlewareFunc {
	ancestors := "'none'"
	frameOptions := "DENY"
	if len(frameAncestors) > 0 {
		ancestors = strings.Join(frameAncestors, " ")
		frameOptions = ""
	}
	csp := "default-src 'self'; frame-ancestors " + ancestors + "; form-action 'self'; base-uri 'self'"

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if frameOptions != "" {
				h.Set("X-Frame-Options", frameOptions)
			}
			return next(c)
		}
	}
}
