package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/howitz/howitz/internal/events"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultDevHTTPAddr     = "127.0.0.1:9000"
	defaultSessionLifetime = 12 * time.Hour

	eventsEnvPrefix = "howitz"
)

// ErrMissingDatabaseURL is returned when a command needs Postgres and
// DATABASE_URL is unset.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

type Config struct {
	DatabaseURL        string
	HTTPAddr           string
	DevMode            bool
	AuthCookieSecure   bool
	MetricsAddr        string
	SessionLifetime    time.Duration
	EventSourceFixture string
	Events             Events
}

// Events tunes the per-session event engines. Variables carry the HOWITZ_
// prefix, e.g. HOWITZ_STALE_AFTER.
type Events struct {
	StaleAfter         time.Duration       `envconfig:"STALE_AFTER" default:"60s"`
	SessionIdleTimeout time.Duration       `envconfig:"SESSION_IDLE_TIMEOUT" default:"2h"`
	JanitorInterval    time.Duration       `envconfig:"JANITOR_INTERVAL" default:"5m"`
	ReconnectInterval  time.Duration       `envconfig:"RECONNECT_INTERVAL" default:"5s"`
	PollInterval       time.Duration       `envconfig:"POLL_INTERVAL" default:"30s"`
	DefaultSort        events.SortStrategy `envconfig:"DEFAULT_SORT" default:"lasttrans"`
}

type LoadOptions struct {
	RequireDatabaseURL bool
	// DevMode forces dev mode on regardless of DEV_MODE.
	DevMode bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadOptionalDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DevMode:            opts.DevMode || getenvBoolDefault("DEV_MODE", false),
		AuthCookieSecure:   getenvBoolDefault("AUTH_COOKIE_SECURE", false),
		MetricsAddr:        strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		SessionLifetime:    defaultSessionLifetime,
		EventSourceFixture: strings.TrimSpace(os.Getenv("EVENT_SOURCE_FIXTURE")),
	}

	addrDefault := defaultHTTPAddr
	if cfg.DevMode {
		addrDefault = defaultDevHTTPAddr
	}
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", addrDefault)

	if v := os.Getenv("SESSION_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionLifetime = d
		}
	}

	if err := envconfig.Process(eventsEnvPrefix, &cfg.Events); err != nil {
		return cfg, fmt.Errorf("event engine config: %w", err)
	}
	sortBy, err := events.ParseSortStrategy(string(cfg.Events.DefaultSort))
	if err != nil {
		return cfg, fmt.Errorf("HOWITZ_DEFAULT_SORT: %w", err)
	}
	cfg.Events.DefaultSort = sortBy

	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, ErrMissingDatabaseURL
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return def
	}
}
