package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/howitz/howitz/internal/auth"
	"github.com/howitz/howitz/internal/auth/providers"
	"github.com/howitz/howitz/internal/eventsource"
	"github.com/howitz/howitz/internal/http/authn"
	"github.com/howitz/howitz/internal/http/viewmodels"
	"github.com/howitz/howitz/internal/http/views"
	"github.com/howitz/howitz/internal/reconcile"
	"github.com/labstack/echo/v5"
)

const invalidLoginMessage = "Invalid username or password."

func (h *Handlers) HandleLoginGet(c *echo.Context) error {
	if h.Sessions == nil {
		return errors.New("auth sessions not configured")
	}

	if _, ok, err := authn.LoadPrincipal(c, h.Sessions, h.Users); err != nil {
		return err
	} else if ok {
		return c.Redirect(http.StatusSeeOther, "/events")
	}

	count, err := h.Users.CountUsers(c.Request().Context())
	if err != nil {
		return err
	}

	data := viewmodels.LoginViewData{
		CSRFToken:     csrfToken(c),
		Next:          authn.SanitizeNext(c.QueryParam("next")),
		SetupRequired: count == 0,
		Toast:         h.popFlashToast(c),
	}
	return h.RenderComponent(c, views.LoginPage(data))
}

func (h *Handlers) HandleLoginPost(c *echo.Context) error {
	if h.Sessions == nil {
		return errors.New("auth sessions not configured")
	}

	ctx := c.Request().Context()

	count, err := h.Users.CountUsers(ctx)
	if err != nil {
		return err
	}

	username := auth.NormalizeUsername(c.FormValue("username"))
	password := c.FormValue("password")
	next := authn.SanitizeNext(c.FormValue("next"))

	data := viewmodels.LoginViewData{
		CSRFToken: csrfToken(c),
		Username:  username,
		Next:      next,
	}

	if count == 0 {
		data.SetupRequired = true
		return h.RenderComponent(c, views.LoginPage(data))
	}

	if username == "" || strings.TrimSpace(password) == "" {
		data.ErrorMessage = invalidLoginMessage
		return h.RenderComponent(c, views.LoginPage(data))
	}

	provider := h.Provider
	if provider == nil {
		provider = providers.NewPasswordProvider(h.Users)
	}
	principal, err := provider.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			data.ErrorMessage = invalidLoginMessage
			return h.RenderComponent(c, views.LoginPage(data))
		}
		return err
	}

	key, _, err := h.Engines.Open(ctx, eventsource.Credentials{Username: principal.Username, Token: principal.Token})
	if err != nil {
		c.Logger().Warn("open event source session", "request_id", requestID(c), "user", principal.Username, "error", err)
		switch {
		case errors.Is(err, eventsource.ErrAuthentication):
			data.ErrorMessage = "Zino rejected the credentials stored for this user."
		default:
			data.ErrorMessage = "Could not connect to Zino. Try again shortly."
		}
		return h.RenderComponent(c, views.LoginPage(data))
	}

	// A repeated login replaces the session's previous event engine.
	h.dropEngine(c)
	if err := h.Sessions.RenewToken(ctx); err != nil {
		_ = h.Engines.Remove(key)
		return err
	}
	h.Sessions.Put(ctx, authn.SessionKeyUsername, principal.Username)
	h.Sessions.Put(ctx, authn.SessionKeyEngine, key)
	c.Logger().Info("user logged in", "request_id", requestID(c), "user", principal.Username, "session", key[:8])

	if next != "" {
		return c.Redirect(http.StatusSeeOther, next)
	}
	return c.Redirect(http.StatusSeeOther, "/events")
}

func (h *Handlers) HandleLogoutPost(c *echo.Context) error {
	if h.Sessions == nil {
		return errors.New("auth sessions not configured")
	}
	addVary(c, hxRequest)

	ctx := c.Request().Context()
	h.dropEngine(c)
	if err := h.Sessions.Destroy(ctx); err != nil {
		return err
	}
	h.setFlashToast(c, viewmodels.ToastViewData{
		Category: "success",
		Title:    "Signed out",
	})
	if isHX(c) {
		setHXRedirect(c, "/login")
		return c.NoContent(http.StatusOK)
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

// engine returns the event engine of the current session, opening a new one
// when the session has none or the janitor evicted it.
func (h *Handlers) engine(c *echo.Context) (*reconcile.Engine, error) {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok {
		return nil, echo.ErrUnauthorized
	}
	ctx := c.Request().Context()

	if e, ok := h.Engines.Get(h.Sessions.GetString(ctx, authn.SessionKeyEngine)); ok && e.Username() == principal.Username {
		return e, nil
	}

	h.dropEngine(c)
	key, e, err := h.Engines.Open(ctx, eventsource.Credentials{Username: principal.Username, Token: principal.Token})
	if err != nil {
		return nil, err
	}
	h.Sessions.Put(ctx, authn.SessionKeyEngine, key)
	return e, nil
}

func (h *Handlers) dropEngine(c *echo.Context) {
	if h.Engines == nil {
		return
	}
	key := h.Sessions.GetString(c.Request().Context(), authn.SessionKeyEngine)
	if key == "" {
		return
	}
	if err := h.Engines.Remove(key); err != nil {
		c.Logger().Debug("closing event source session", "session", key[:min(8, len(key))], "error", err)
	}
}
