package handlers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v5"
)

// HTMX request and response headers.
const (
	hxRequest  = "HX-Request"
	hxRedirect = "HX-Redirect"
	hxRetarget = "HX-Retarget"
	hxReswap   = "HX-Reswap"
)

func isHX(c *echo.Context) bool {
	if c == nil || c.Request() == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(c.Request().Header.Get(hxRequest)), "true")
}

func setHXRedirect(c *echo.Context, url string) {
	c.Response().Header().Set(hxRedirect, url)
}

// retarget makes HTMX swap the response into target with the given swap
// style instead of what the triggering element asked for.
func retarget(c *echo.Context, target, swap string) {
	h := c.Response().Header()
	h.Set(hxRetarget, target)
	h.Set(hxReswap, swap)
}

// addVary merges values into the Vary header, case-insensitively and
// without duplicates. A "*" already present wins.
func addVary(c *echo.Context, values ...string) {
	if c == nil || len(values) == 0 {
		return
	}
	header := c.Response().Header()

	var tokens []string
	for _, line := range append(header.Values(echo.HeaderVary), values...) {
		for _, token := range strings.Split(line, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if token == "*" {
				header.Set(echo.HeaderVary, "*")
				return
			}
			token = http.CanonicalHeaderKey(token)
			if !slices.ContainsFunc(tokens, func(t string) bool { return strings.EqualFold(t, token) }) {
				tokens = append(tokens, token)
			}
		}
	}
	if len(tokens) > 0 {
		header.Set(echo.HeaderVary, strings.Join(tokens, ", "))
	}
}
