// Package handlers contains HTTP handler logic split by domain.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/howitz/howitz/internal/auth/providers"
	"github.com/howitz/howitz/internal/config"
	"github.com/howitz/howitz/internal/eventsource"
	"github.com/howitz/howitz/internal/http/authn"
	"github.com/howitz/howitz/internal/http/viewmodels"
	"github.com/howitz/howitz/internal/http/views"
	"github.com/howitz/howitz/internal/reconcile"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"
)

// UserStore is the part of the query layer the handlers read.
type UserStore interface {
	authn.UserStore
	CountUsers(ctx context.Context) (int64, error)
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Cfg      config.Config
	Users    UserStore
	Provider providers.Provider
	Sessions *scs.SessionManager
	Engines  *reconcile.Manager
}

// LayoutData builds the common layout data for page rendering.
func (h *Handlers) LayoutData(c *echo.Context, title string) viewmodels.LayoutData {
	principal, _ := authn.PrincipalFromContext(c)
	return viewmodels.LayoutData{
		Title:      title,
		CSRFToken:  csrfToken(c),
		Username:   principal.Username,
		Toast:      h.popFlashToast(c),
		ActivePath: c.Request().URL.Path,
	}
}

func csrfToken(c *echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}

// RenderComponent renders a templ component as the response.
func (h *Handlers) RenderComponent(c *echo.Context, component templ.Component) error {
	return h.RenderComponentStatus(c, http.StatusOK, component)
}

// RenderComponentStatus renders a templ component with an explicit status.
func (h *Handlers) RenderComponentStatus(c *echo.Context, status int, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(status)
	if err := component.Render(c.Request().Context(), c.Response()); err != nil {
		c.Logger().Error("render component", "request_id", requestID(c), "error", err)
	}
	return nil
}

func requestID(c *echo.Context) string {
	id, _ := c.Get(ContextKeyRequestID).(string)
	return id
}

// RenderError returns a generic 500. HTMX requests get an alert fragment
// whose id is logged next to the error.
func (h *Handlers) RenderError(c *echo.Context, err error) error {
	reqID := requestID(c)
	path := ""
	if req := c.Request(); req != nil && req.URL != nil {
		path = req.URL.Path
	}
	method := ""
	if req := c.Request(); req != nil {
		method = req.Method
	}

	if isHX(c) {
		alertID := newAlertID()
		c.Logger().Error("http error",
			"request_id", reqID,
			"alert_id", alertID,
			"method", method,
			"path", path,
			"ip", c.RealIP(),
			"error", err,
		)
		return h.renderAlert(c, http.StatusInternalServerError, viewmodels.AlertViewData{
			ID:      alertID,
			Title:   "Internal server error.",
			Message: "Code: " + InternalErrorCode + ".",
			Class:   "alert-error",
		})
	}

	c.Logger().Error("http error",
		"request_id", reqID,
		"method", method,
		"path", path,
		"ip", c.RealIP(),
		"error", err,
	)

	msg := "Internal server error."
	if reqID != "" {
		msg = fmt.Sprintf("%s Reference: %s.", msg, reqID)
	}
	msg = fmt.Sprintf("%s Code: %s.", msg, InternalErrorCode)
	return c.String(http.StatusInternalServerError, msg)
}

// RenderBadRequest reports a client mistake. The message must be safe to
// show to the user.
func (h *Handlers) RenderBadRequest(c *echo.Context, message string) error {
	addVary(c, hxRequest)
	if isHX(c) {
		return h.renderAlert(c, http.StatusBadRequest, viewmodels.AlertViewData{
			ID:      newAlertID(),
			Title:   "Request failed.",
			Message: message,
			Class:   "alert-warning",
		})
	}
	return c.String(http.StatusBadRequest, message)
}

// renderAlert appends an alert to #alerts regardless of the requesting
// element's target.
func (h *Handlers) renderAlert(c *echo.Context, status int, alert viewmodels.AlertViewData) error {
	retarget(c, "#alerts", "beforeend")
	return h.RenderComponentStatus(c, status, views.Alert(alert))
}

// RenderNotFound returns a 404 response.
func RenderNotFound(c *echo.Context) error {
	return c.String(http.StatusNotFound, "404 page not found")
}

// RenderLostConnection handles ErrLostConnection and ErrAuthentication from
// the event source. An authenticated session is reconnected and told to
// retry; anything else is sent back to the login page.
func (h *Handlers) RenderLostConnection(c *echo.Context, err error) error {
	principal, ok := authn.PrincipalFromContext(c)
	if !ok || h.Sessions == nil || h.Engines == nil {
		return authn.HandleUnauth(c)
	}
	ctx := c.Request().Context()
	log := c.Logger().With("request_id", requestID(c), "user", principal.Username)

	if errors.Is(err, eventsource.ErrAuthentication) {
		log.Warn("event source rejected session credentials", "error", err)
		h.dropEngine(c)
		if dErr := h.Sessions.Destroy(ctx); dErr != nil {
			return dErr
		}
		h.setFlashToast(c, viewmodels.ToastViewData{
			Category:    "error",
			Title:       "Signed out",
			Description: "Zino rejected your credentials.",
		})
		return authn.HandleUnauth(c)
	}

	alert := viewmodels.AlertViewData{
		ID:      newAlertID(),
		Title:   "Lost connection to Zino.",
		Message: "Reconnected, please try again.",
		Class:   "alert-warning",
	}
	engine, found := h.Engines.Get(h.Sessions.GetString(ctx, authn.SessionKeyEngine))
	if found {
		if _, rErr := engine.Recover(ctx); rErr != nil {
			alert.Message = "Reconnecting failed, retrying shortly."
			if !errors.Is(rErr, reconcile.ErrRecoverThrottled) {
				alert.Class = "alert-error"
			}
			log.Warn("recover event source connection", "alert_id", alert.ID, "error", rErr)
		} else {
			log.Info("recovered event source connection", "alert_id", alert.ID, "cause", err)
		}
	}

	addVary(c, hxRequest)
	if isHX(c) {
		return h.renderAlert(c, http.StatusServiceUnavailable, alert)
	}
	return c.String(http.StatusServiceUnavailable, alert.Title+" "+alert.Message)
}

func newAlertID() string {
	return uuid.NewString()
}

func parseEventID(c *echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
