package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/howitz/howitz/internal/auth"
	"github.com/howitz/howitz/internal/db/gen"
	"github.com/howitz/howitz/internal/eventsource"
	"github.com/howitz/howitz/internal/http/authn"
	"github.com/howitz/howitz/internal/reconcile"
	"github.com/labstack/echo/v5"
)

func newLoginHandler(t *testing.T, users fakeUsers, hub *eventsource.Hub) *Handlers {
	t.Helper()

	manager := reconcile.NewManager(hub, reconcile.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	t.Cleanup(func() { _ = manager.CloseAll() })
	return &Handlers{Users: users, Sessions: scs.New(), Engines: manager}
}

func postLogin(t *testing.T, h *Handlers, form url.Values) (*httptest.ResponseRecorder, context.Context) {
	t.Helper()

	ctx, err := h.Sessions.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("sessions.Load() error = %v", err)
	}
	return postLoginInSession(t, h, ctx, form)
}

// postLoginInSession posts the login form with ctx's session already loaded.
func postLoginInSession(t *testing.T, h *Handlers, ctx context.Context, form url.Values) (*httptest.ResponseRecorder, context.Context) {
	t.Helper()

	e := echo.New()
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodPost, "http://example.com/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleLoginPost(c); err != nil {
		t.Fatalf("HandleLoginPost() error = %v", err)
	}
	return rec, ctx
}

func aliceUsers(t *testing.T) fakeUsers {
	t.Helper()

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return fakeUsers{"alice": gen.User{Username: "alice", PasswordHash: hash, Token: "zino-token"}}
}

func TestHandleLoginPostOpensEventSession(t *testing.T) {
	t.Parallel()

	hub := eventsource.NewHub(eventsource.WithTokens(map[string]string{"alice": "zino-token"}))
	h := newLoginHandler(t, aliceUsers(t), hub)

	rec, ctx := postLogin(t, h, url.Values{
		"username": {" alice "},
		"password": {"correct horse"},
		"next":     {"/events?sort=age"},
	})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); got != "/events?sort=age" {
		t.Fatalf("Location = %q", got)
	}
	if got := h.Sessions.GetString(ctx, authn.SessionKeyUsername); got != "alice" {
		t.Fatalf("session username = %q, want alice", got)
	}
	if _, ok := h.Engines.Get(h.Sessions.GetString(ctx, authn.SessionKeyEngine)); !ok {
		t.Fatal("login did not register an event engine")
	}
}

func TestHandleLoginPostReplacesEventSession(t *testing.T) {
	t.Parallel()

	hub := eventsource.NewHub(eventsource.WithTokens(map[string]string{"alice": "zino-token"}))
	h := newLoginHandler(t, aliceUsers(t), hub)
	form := url.Values{"username": {"alice"}, "password": {"correct horse"}}

	_, ctx := postLogin(t, h, form)
	first := h.Sessions.GetString(ctx, authn.SessionKeyEngine)
	if first == "" {
		t.Fatal("first login did not store an engine key")
	}

	rec, ctx := postLoginInSession(t, h, ctx, form)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	second := h.Sessions.GetString(ctx, authn.SessionKeyEngine)
	if second == "" || second == first {
		t.Fatalf("engine key = %q after second login, want a new key", second)
	}
	if _, ok := h.Engines.Get(first); ok {
		t.Fatal("previous engine still registered")
	}
	if n := h.Engines.Len(); n != 1 {
		t.Fatalf("Engines.Len() = %d, want 1", n)
	}
}

func TestEngineReplacesEngineOfAnotherUser(t *testing.T) {
	t.Parallel()

	hub := eventsource.NewHub()
	h := newLoginHandler(t, nil, hub)
	ctx, err := h.Sessions.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("sessions.Load() error = %v", err)
	}
	staleKey, _, err := h.Engines.Open(ctx, eventsource.Credentials{Username: "bob", Token: "t"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	h.Sessions.Put(ctx, authn.SessionKeyEngine, staleKey)

	c, _ := newTestContext(http.MethodGet, "/events")
	c.SetRequest(c.Request().WithContext(ctx))
	c.Set(authn.ContextKeyPrincipal, auth.Principal{Username: "alice", Method: auth.MethodPassword, Token: "t"})

	e, err := h.engine(c)
	if err != nil {
		t.Fatalf("engine() error = %v", err)
	}
	if e.Username() != "alice" {
		t.Fatalf("engine user = %q, want alice", e.Username())
	}
	if _, ok := h.Engines.Get(staleKey); ok {
		t.Fatal("engine of the previous user still registered")
	}
	if n := h.Engines.Len(); n != 1 {
		t.Fatalf("Engines.Len() = %d, want 1", n)
	}
}

func TestHandleLoginPostRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		users    func(*testing.T) fakeUsers
		tokens   map[string]string
		password string
		want     string
	}{
		{name: "wrong password", users: aliceUsers, password: "battery staple", want: invalidLoginMessage},
		{name: "empty password", users: aliceUsers, password: " ", want: invalidLoginMessage},
		{name: "token rejected", users: aliceUsers, tokens: map[string]string{"alice": "other"}, password: "correct horse", want: "Zino rejected"},
		{name: "no users", users: func(*testing.T) fakeUsers { return fakeUsers{} }, password: "x", want: "howitz users create"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var opts []eventsource.HubOption
			if tc.tokens != nil {
				opts = append(opts, eventsource.WithTokens(tc.tokens))
			}
			h := newLoginHandler(t, tc.users(t), eventsource.NewHub(opts...))

			rec, ctx := postLogin(t, h, url.Values{"username": {"alice"}, "password": {tc.password}})

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Fatalf("body missing %q", tc.want)
			}
			if got := h.Sessions.GetString(ctx, authn.SessionKeyUsername); got != "" {
				t.Fatalf("session username = %q after failed login", got)
			}
			if n := h.Engines.Len(); n != 0 {
				t.Fatalf("Engines.Len() = %d after failed login", n)
			}
		})
	}
}

func newAuthHandlerWithSessionContext(t *testing.T, c *echo.Context) *Handlers {
	t.Helper()

	sessions := scs.New()
	sessionCtx, err := sessions.Load(c.Request().Context(), "")
	if err != nil {
		t.Fatalf("sessions.Load() error = %v", err)
	}
	c.SetRequest(c.Request().WithContext(sessionCtx))
	return &Handlers{Sessions: sessions}
}

func TestHandleLogoutPost(t *testing.T) {
	tests := []struct {
		name         string
		hx           bool
		wantStatus   int
		wantLocation string
		wantHXTarget string
	}{
		{name: "plain form", wantStatus: http.StatusSeeOther, wantLocation: "/login"},
		{name: "htmx", hx: true, wantStatus: http.StatusOK, wantHXTarget: "/login"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newTestContext(http.MethodPost, "http://example.com/logout")
			if tc.hx {
				c.Request().Header.Set("HX-Request", "true")
			}
			h := newAuthHandlerWithSessionContext(t, c)

			if err := h.HandleLogoutPost(c); err != nil {
				t.Fatalf("HandleLogoutPost() error = %v", err)
			}
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Location"); got != tc.wantLocation {
				t.Fatalf("Location = %q, want %q", got, tc.wantLocation)
			}
			if got := rec.Header().Get("HX-Redirect"); got != tc.wantHXTarget {
				t.Fatalf("HX-Redirect = %q, want %q", got, tc.wantHXTarget)
			}
			if vary := parseVaryHeader(rec.Header().Get("Vary")); vary["hx-request"] != 1 {
				t.Fatalf("Vary header missing hx-request: %v", vary)
			}
			if toast := h.popFlashToast(c); toast == nil || toast.Title != "Signed out" {
				t.Fatalf("toast = %v, want sign-out toast", toast)
			}
		})
	}
}

func TestHandleLogoutPostClosesEventSession(t *testing.T) {
	t.Parallel()

	hub := eventsource.NewHub()
	h := newLoginHandler(t, aliceUsers(t), hub)
	_, ctx := postLogin(t, h, url.Values{"username": {"alice"}, "password": {"correct horse"}})
	if h.Engines.Len() != 1 {
		t.Fatal("login did not open an engine")
	}

	c, rec := newTestContext(http.MethodPost, "http://example.com/logout")
	c.SetRequest(c.Request().WithContext(ctx))
	if err := h.HandleLogoutPost(c); err != nil {
		t.Fatalf("HandleLogoutPost() error = %v", err)
	}
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if n := h.Engines.Len(); n != 0 {
		t.Fatalf("Engines.Len() = %d after logout, want 0", n)
	}
}
