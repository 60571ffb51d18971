// Package reconcile keeps a session's cached view of the event source in
// step with its change notifications.
package reconcile

import (
	"errors"
	"log/slog"
	"time"

	"github.com/howitz/howitz/internal/events"
	"github.com/howitz/howitz/internal/eventtable"
)

// State is the connection state of an Engine.
type State int

const (
	Disconnected State = iota
	ConnectedNoUpdater
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectedNoUpdater:
		return "connected_no_updater"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// ErrRecoverThrottled is returned by Recover when the session reconnected
// too recently.
var ErrRecoverThrottled = errors.New("reconnect throttled")

// Changes is the result of one incremental refresh.
type Changes struct {
	Removed  []int64
	Modified []eventtable.Row
	Added    []eventtable.Row
	// Resorted is the complete table in display order. It is nil when only
	// the deltas above need patching.
	Resorted []eventtable.Row
}

// Full reports whether the refresh produced a complete resorted table.
func (c Changes) Full() bool { return c.Resorted != nil }

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Removed) == 0 && len(c.Modified) == 0 && len(c.Added) == 0 && c.Resorted == nil
}

// Defaults applied when an Options field is zero.
const (
	DefaultStaleAfter        = 60 * time.Second
	DefaultReconnectInterval = 5 * time.Second
)

// Options configures an Engine.
type Options struct {
	// StaleAfter bounds how old the last full sort may get before a refresh
	// resorts even without order-relevant changes.
	StaleAfter time.Duration
	// ReconnectInterval is the minimum spacing between Recover attempts.
	ReconnectInterval time.Duration
	DefaultSort       events.SortStrategy
	Now               func() time.Time
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.DefaultSort == "" {
		o.DefaultSort = events.SortDefault
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
