package authn

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/howitz/howitz/internal/auth"
	"github.com/howitz/howitz/internal/db/gen"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v5"
)

const (
	ContextKeyPrincipal = "auth_principal"

	SessionKeyUsername = "auth_username"
	// SessionKeyEngine holds the state key of the session's event engine.
	SessionKeyEngine = "event_engine"
)

// UserStore resolves the username stored in the session.
type UserStore interface {
	GetUser(ctx context.Context, username string) (gen.User, error)
}

func PrincipalFromContext(c *echo.Context) (auth.Principal, bool) {
	p, ok := c.Get(ContextKeyPrincipal).(auth.Principal)
	return p, ok
}

func LoadPrincipal(c *echo.Context, sessions *scs.SessionManager, users UserStore) (auth.Principal, bool, error) {
	ctx := c.Request().Context()
	username := sessions.GetString(ctx, SessionKeyUsername)
	if username == "" {
		return auth.Principal{}, false, nil
	}

	user, err := users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = sessions.Destroy(ctx)
			return auth.Principal{}, false, nil
		}
		return auth.Principal{}, false, err
	}

	return auth.Principal{
		Username: user.Username,
		Method:   auth.MethodPassword,
		Token:    user.Token,
	}, true, nil
}

func RequireAuth(sessions *scs.SessionManager, users UserStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			principal, ok, err := LoadPrincipal(c, sessions, users)
			if err != nil {
				return err
			}
			if !ok {
				return HandleUnauth(c)
			}
			c.Set(ContextKeyPrincipal, principal)
			return next(c)
		}
	}
}

// HandleUnauth sends the client to the login page. HTMX requests get an
// HX-Redirect so the whole page navigates instead of swapping the login
// form into a fragment.
func HandleUnauth(c *echo.Context) error {
	location := "/login"
	if c.Request().Method == http.MethodGet && !isHX(c) {
		if next := SanitizeNext(c.Request().URL.RequestURI()); next != "" {
			location = "/login?next=" + url.QueryEscape(next)
		}
	}
	if isHX(c) {
		c.Response().Header().Set("HX-Redirect", location)
		return c.NoContent(http.StatusOK)
	}
	return c.Redirect(http.StatusSeeOther, location)
}

func isHX(c *echo.Context) bool {
	return strings.EqualFold(strings.TrimSpace(c.Request().Header.Get("HX-Request")), "true")
}

func SanitizeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || next == "/" || len(next) > 2048 {
		return ""
	}
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	if strings.Contains(next, "\\") {
		return ""
	}

	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" || u.Scheme != "" {
		return ""
	}
	// Percent-encoded slashes and backslashes decode into the same tricks.
	if strings.HasPrefix(u.Path, "//") || strings.Contains(u.Path, "\\") {
		return ""
	}
	if u.Path == "/login" || strings.HasPrefix(u.Path, "/login/") {
		return ""
	}
	return next
}
