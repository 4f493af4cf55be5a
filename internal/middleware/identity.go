package middleware

// identity.go holds helpers that pull caller identity out of a request:
// the shopper's hold token and the authenticated service subject.

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderHoldToken carries the shopper's opaque hold token.
const HeaderHoldToken = "X-Hold-Token"

// HoldToken returns the hold token from the X-Hold-Token header or the
// hold_token query parameter, or "" when the caller sent none.
func HoldToken(c echo.Context) string {
	if v := strings.TrimSpace(c.Request().Header.Get(HeaderHoldToken)); v != "" {
		return v
	}
	return strings.TrimSpace(c.QueryParam("hold_token"))
}

// Subject returns the JWT subject stored by JWTAuth, or "anonymous".
func Subject(c echo.Context) string {
	if s, ok := c.Get(ctxSubject).(string); ok && s != "" {
		return s
	}
	return "anonymous"
}
