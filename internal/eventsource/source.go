// Package eventsource defines the event source collaborator consumed by the
// reconciliation engine, its error taxonomy and an in-memory implementation.
package eventsource

import (
	"context"

	"github.com/howitz/howitz/internal/events"
)

// Credentials authenticate one session against the event source.
type Credentials struct {
	Username string
	Token    string
}

// Connector opens authenticated, session-scoped connections.
type Connector interface {
	Connect(ctx context.Context, creds Credentials) (Source, error)
}

// Source is one authenticated connection to the event source. All calls may
// block on network I/O and may fail with ErrRetryable.
type Source interface {
	// FetchEvents returns every open event in the source's natural order.
	FetchEvents(ctx context.Context) ([]events.Event, error)
	FetchEvent(ctx context.Context, id int64) (events.Event, error)
	FetchLog(ctx context.Context, id int64) ([]events.LogEntry, error)
	FetchHistory(ctx context.Context, id int64) ([]events.HistoryEntry, error)

	// Subscribe establishes the update subscription for this connection.
	Subscribe(ctx context.Context) (Updater, error)
	// RemovedIDs returns the ids the source knows to have been deleted.
	RemovedIDs() map[int64]struct{}

	ChangeAdminState(ctx context.Context, id int64, state events.AdmState) error
	AddHistoryEntry(ctx context.Context, id int64, text string) error
	// ClearFlapping resets the flap counter; false when the event type has none.
	ClearFlapping(ctx context.Context, id int64) (bool, error)

	Close() error
}

// Updater delivers change notifications for a subscribed connection.
type Updater interface {
	// Poll returns the next changed event id without blocking. ok is false
	// when nothing is pending.
	Poll(ctx context.Context) (id int64, ok bool, err error)
	Close() error
}
