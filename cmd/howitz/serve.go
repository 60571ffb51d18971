package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/pgxstore"
	"github.com/alexedwards/scs/v2"
	"github.com/howitz/howitz/internal/config"
	"github.com/howitz/howitz/internal/db/gen"
	"github.com/howitz/howitz/internal/eventsource"
	httpapp "github.com/howitz/howitz/internal/http"
	"github.com/howitz/howitz/internal/metrics"
	"github.com/howitz/howitz/internal/reconcile"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	sessionCookieName = "howitz_session"
	shutdownTimeout   = 10 * time.Second
)

var serveDevMode bool

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the web front-end.",
	Args:        cobra.NoArgs,
	Annotations: structuredLog(),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "Development mode: listen on 127.0.0.1:9000 with text debug logs")
}

// devMode reports whether dev mode was requested by flag or DEV_MODE.
func devMode() bool {
	if serveDevMode {
		return true
	}
	switch os.Getenv("DEV_MODE") {
	case "1", "true", "TRUE", "True":
		return true
	}
	return false
}

func runServe(ctx context.Context) error {
	cfg, err := config.LoadWithOptions(config.LoadOptions{RequireDatabaseURL: true, DevMode: serveDevMode})
	if err != nil {
		return exitWith(exitUsage, err)
	}
	logger := slog.Default()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := pgxstore.New(pool)
	defer store.StopCleanup()
	sessions := newSessionManager(cfg, store)

	hub, err := newEventHub(cfg)
	if err != nil {
		return err
	}
	engines := reconcile.NewManager(hub, reconcile.Options{
		StaleAfter:        cfg.Events.StaleAfter,
		ReconnectInterval: cfg.Events.ReconnectInterval,
		DefaultSort:       cfg.Events.DefaultSort,
		Logger:            logger,
	})

	srv, err := httpapp.NewEchoServer(cfg, gen.New(pool), engines, sessions)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		janitor := reconcile.Janitor{
			Manager:     engines,
			Interval:    cfg.Events.JanitorInterval,
			IdleTimeout: cfg.Events.SessionIdleTimeout,
		}
		janitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.MetricsAddr, logger)
	})
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTPAddr, "dev_mode", cfg.DevMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if cErr := engines.CloseAll(); cErr != nil {
			logger.Warn("closing event sessions", "error", cErr)
		}
		return err
	})
	return g.Wait()
}

func newSessionManager(cfg config.Config, store scs.Store) *scs.SessionManager {
	sessions := scs.New()
	sessions.Store = store
	sessions.Lifetime = cfg.SessionLifetime
	sessions.Cookie.Name = sessionCookieName
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteLaxMode
	sessions.Cookie.Secure = cfg.AuthCookieSecure
	return sessions
}

// newEventHub builds the event source. A fixture path seeds it; otherwise it
// starts empty.
func newEventHub(cfg config.Config) (*eventsource.Hub, error) {
	if cfg.EventSourceFixture == "" {
		return eventsource.NewHub(), nil
	}
	fixture, err := eventsource.LoadFixtureFile(cfg.EventSourceFixture)
	if err != nil {
		return nil, err
	}
	slog.Info("seeded event source from fixture", "path", cfg.EventSourceFixture, "events", len(fixture.Events))
	return eventsource.NewHubFromFixture(fixture), nil
}
