package httpapp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/howitz/howitz/internal/config"
	"github.com/howitz/howitz/internal/eventsource"
	"github.com/howitz/howitz/internal/http/authn"
	"github.com/howitz/howitz/internal/http/handlers"
	"github.com/howitz/howitz/internal/http/views"
	"github.com/howitz/howitz/internal/reconcile"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h *handlers.Handlers
	e *echo.Echo
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(cfg config.Config, users handlers.UserStore, engines *reconcile.Manager, sessions *scs.SessionManager) (*EchoServer, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if engines == nil {
		return nil, errors.New("engine manager is required")
	}
	if sessions == nil {
		return nil, errors.New("session manager is required")
	}

	h := &handlers.Handlers{Cfg: cfg, Users: users, Sessions: sessions, Engines: engines}
	es := &EchoServer{h: h, e: echo.New()}
	es.e.HTTPErrorHandler = es.httpErrorHandler
	es.registerRoutes(cfg)
	return es, nil
}

// Handler returns the application wrapped in the session middleware.
func (es *EchoServer) Handler() http.Handler {
	return es.h.Sessions.LoadAndSave(es.e)
}

func (es *EchoServer) registerRoutes(cfg config.Config) {
	es.e.Use(requestIDMiddleware)

	es.e.GET("/healthz", es.h.HandleHealthz)
	es.e.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static/", http.FileServerFS(views.Static()))))

	csrf := middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:" + echo.HeaderXCSRFToken + ",form:csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.AuthCookieSecure,
		CookieSameSite: http.SameSiteLaxMode,
	})

	es.e.GET("/login", es.h.HandleLoginGet, csrf)
	es.e.POST("/login", es.h.HandleLoginPost, csrf)

	authed := []echo.MiddlewareFunc{csrf, authn.RequireAuth(es.h.Sessions, es.h.Users)}
	es.e.POST("/logout", es.h.HandleLogoutPost, authed...)
	es.e.GET("/", es.h.HandleIndex, authed...)
	es.e.GET("/events", es.h.HandleEvents, authed...)
	es.e.GET("/events/table", es.h.HandleEventsTable, authed...)
	es.e.GET("/events/refresh", es.h.HandleEventsRefresh, authed...)
	es.e.POST("/events/sort", es.h.HandleEventsSort, authed...)
	es.e.POST("/events/clear-ui-state", es.h.HandleClearUIState, authed...)
	es.e.GET("/events/bulk/status", es.h.HandleBulkStatusForm, authed...)
	es.e.POST("/events/bulk/status", es.h.HandleBulkStatusUpdate, authed...)
	es.e.POST("/events/bulk/clear-flapping", es.h.HandleBulkClearFlapping, authed...)
	es.e.GET("/events/:id/expand", es.h.HandleEventExpand, authed...)
	es.e.GET("/events/:id/collapse", es.h.HandleEventCollapse, authed...)
	es.e.POST("/events/:id/select", es.h.HandleEventSelect, authed...)
	es.e.POST("/events/:id/unselect", es.h.HandleEventUnselect, authed...)
	es.e.GET("/events/:id/status", es.h.HandleEventStatusForm, authed...)
	es.e.POST("/events/:id/status", es.h.HandleEventStatusUpdate, authed...)
	es.e.GET("/events/:id/status/cancel", es.h.HandleEventStatusCancel, authed...)
	es.e.POST("/events/:id/clear-flapping", es.h.HandleEventClearFlapping, authed...)
}

// requestIDMiddleware reuses a sane inbound X-Request-ID or mints a uuid.
func requestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(echo.HeaderXRequestID))
		if id == "" || len(id) > 64 || strings.ContainsAny(id, "\r\n") {
			id = uuid.NewString()
		}
		c.Set(handlers.ContextKeyRequestID, id)
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}

func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	if err == nil {
		return
	}

	var herr error
	switch status := httpStatusFromError(err); {
	case errors.Is(err, eventsource.ErrLostConnection), errors.Is(err, eventsource.ErrAuthentication):
		herr = es.h.RenderLostConnection(c, err)
	case status == http.StatusUnauthorized:
		herr = authn.HandleUnauth(c)
	case status == http.StatusNotFound:
		herr = handlers.RenderNotFound(c)
	case status >= http.StatusInternalServerError:
		herr = es.h.RenderError(c, err)
	default:
		herr = c.String(status, http.StatusText(status))
	}
	if herr != nil {
		c.Logger().Error("write error response", "request_id", c.Get(handlers.ContextKeyRequestID), "error", herr)
	}
}

func httpStatusFromError(err error) int {
	var coder interface{ StatusCode() int }
	if errors.As(err, &coder) {
		if code := coder.StatusCode(); code != 0 {
			return code
		}
	}
	return http.StatusInternalServerError
}
