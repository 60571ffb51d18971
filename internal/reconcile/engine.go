package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/howitz/howitz/internal/events"
	"github.com/howitz/howitz/internal/eventsource"
	"github.com/howitz/howitz/internal/eventtable"
	"github.com/howitz/howitz/internal/metrics"
	"golang.org/x/time/rate"
)

// Engine owns one session's connection to the event source together with
// its cached snapshot, ordered id list and UI state. Calls on one Engine are
// serialized; an overlapping call waits for the previous one to finish.
type Engine struct {
	mu sync.Mutex

	connector eventsource.Connector
	creds     eventsource.Credentials
	opts      Options
	log       *slog.Logger
	projector eventtable.Projector
	limiter   *rate.Limiter

	state   State
	src     eventsource.Source
	updater eventsource.Updater

	snap      *events.Snapshot
	order     []int64
	lastFull  time.Time
	needsFull bool

	// lastUsed is UnixNano, readable without mu so idle checks never wait
	// on an in-flight upstream call.
	lastUsed atomic.Int64

	sortBy   events.SortStrategy
	selected map[string]events.Type
	expanded map[string]struct{}
}

// New returns a disconnected engine for creds.
func New(connector eventsource.Connector, creds eventsource.Credentials, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		connector: connector,
		creds:     creds,
		opts:      opts,
		log:       opts.Logger,
		projector: eventtable.Projector{Now: opts.Now},
		limiter:   rate.NewLimiter(rate.Every(opts.ReconnectInterval), 1),
		snap:      &events.Snapshot{},
		sortBy:    opts.DefaultSort,
		selected:  map[string]events.Type{},
		expanded:  map[string]struct{}{},
	}
	e.touch()
	return e
}

// State returns the current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Username is the event source user the engine authenticates as.
func (e *Engine) Username() string { return e.creds.Username }

// LastUsed returns when the engine last served a call. It does not wait for
// a call in progress.
func (e *Engine) LastUsed() time.Time {
	return time.Unix(0, e.lastUsed.Load()).UTC()
}

func (e *Engine) touch() { e.lastUsed.Store(e.opts.Now().UnixNano()) }

// Connect authenticates against the event source and then tries to
// subscribe to updates. A failed subscription is not an error; the engine
// stays in ConnectedNoUpdater and Refresh retries it.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	return e.connectLocked(ctx)
}

func (e *Engine) connectLocked(ctx context.Context) error {
	if e.state != Disconnected {
		return nil
	}
	src, err := eventsource.WithRetry(ctx, "connect", nil, func(ctx context.Context) (eventsource.Source, error) {
		return e.connector.Connect(ctx, e.creds)
	})
	if err != nil {
		return fmt.Errorf("connect to event source: %w", err)
	}
	e.src = src
	e.state = ConnectedNoUpdater
	metrics.ActiveSessions.Inc()

	if err := e.subscribeLocked(ctx); err != nil {
		e.log.Warn("event source subscription failed", "err", err)
	}
	return nil
}

func (e *Engine) connectedLocked() error {
	if e.state == Disconnected || e.src == nil {
		return eventsource.ErrLostConnection
	}
	return nil
}

func (e *Engine) subscribeLocked(ctx context.Context) error {
	if err := e.connectedLocked(); err != nil {
		return err
	}
	u, err := eventsource.WithRetry(ctx, "subscribe", nil, e.src.Subscribe)
	if err != nil {
		if errors.Is(err, eventsource.ErrLostConnection) {
			return err
		}
		return fmt.Errorf("subscribe: %w: %w", eventsource.ErrLostConnection, err)
	}
	e.updater = u
	e.state = Streaming
	return nil
}

// Close drops the connection and forgets all cached state.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.disconnectLocked()
	e.snap = &events.Snapshot{}
	e.order = nil
	e.lastFull = time.Time{}
	e.needsFull = false
	e.clearUILocked()
	return err
}

func (e *Engine) disconnectLocked() error {
	if e.state == Disconnected {
		return nil
	}
	var errs []error
	if e.updater != nil {
		errs = append(errs, e.updater.Close())
	}
	if e.src != nil {
		errs = append(errs, e.src.Close())
	}
	e.updater = nil
	e.src = nil
	e.state = Disconnected
	metrics.ActiveSessions.Dec()
	return errors.Join(errs...)
}

// Recover reconnects from scratch and replaces the cached snapshot with a
// full fetch. Attempts closer together than the reconnect interval fail
// with ErrRecoverThrottled.
func (e *Engine) Recover(ctx context.Context) ([]eventtable.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()

	if !e.limiter.Allow() {
		metrics.ReconnectsTotal.WithLabelValues("throttled").Inc()
		return nil, ErrRecoverThrottled
	}
	if err := e.disconnectLocked(); err != nil {
		e.log.Debug("closing lost event source connection", "err", err)
	}
	if err := e.connectLocked(ctx); err != nil {
		metrics.ReconnectsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	rows, err := e.currentEventsLocked(ctx)
	if err != nil {
		metrics.ReconnectsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ReconnectsTotal.WithLabelValues("success").Inc()
	e.log.Info("reconnected to event source", "state", e.state.String(), "events", len(rows))
	return rows, nil
}

// UpdateEvents drains every pending change notification and returns the
// affected ids, de-duplicated in first-seen order.
func (e *Engine) UpdateEvents(ctx context.Context) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	return e.updateEventsLocked(ctx)
}

type polled struct {
	id int64
	ok bool
}

func (e *Engine) updateEventsLocked(ctx context.Context) ([]int64, error) {
	if e.state != Streaming || e.updater == nil {
		return nil, eventsource.ErrLostConnection
	}
	var ids []int64
	seen := map[int64]struct{}{}
	for {
		p, err := eventsource.WithRetry(ctx, "poll updates", nil, func(ctx context.Context) (polled, error) {
			id, ok, err := e.updater.Poll(ctx)
			return polled{id: id, ok: ok}, err
		})
		if err != nil {
			if errors.Is(err, eventsource.ErrLostConnection) {
				_ = e.updater.Close()
				e.updater = nil
				e.state = ConnectedNoUpdater
			}
			return nil, err
		}
		if !p.ok {
			return ids, nil
		}
		if _, dup := seen[p.id]; dup {
			continue
		}
		seen[p.id] = struct{}{}
		ids = append(ids, p.id)
	}
}

// Refresh applies pending change notifications to the cached snapshot.
// Added and modified events trigger a full resort, as does a last full sort
// older than the stale threshold; otherwise only deltas are returned.
//
// Notifications are consumed when drained, so a refresh that fails after
// draining marks the snapshot untrusted. The next successful Refresh then
// refetches every event and returns the complete table in Resorted.
func (e *Engine) Refresh(ctx context.Context) (Changes, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()

	start := time.Now()
	changes, err := e.refreshLocked(ctx)
	outcome := metrics.OutcomeDelta
	switch {
	case err != nil:
		outcome = metrics.OutcomeLost
		if !errors.Is(err, eventsource.ErrLostConnection) {
			outcome = metrics.OutcomeError
		}
	case changes.Full():
		outcome = metrics.OutcomeFull
	}
	metrics.RefreshesTotal.WithLabelValues(outcome).Inc()
	metrics.RefreshDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return changes, err
}

func (e *Engine) refreshLocked(ctx context.Context) (Changes, error) {
	if e.state != Streaming {
		if err := e.subscribeLocked(ctx); err != nil {
			e.log.Warn("event source updates unavailable", "state", e.state.String(), "err", err)
			return Changes{}, err
		}
		e.log.Info("resubscribed to event source updates")
	}

	ids, err := e.updateEventsLocked(ctx)
	if err != nil {
		e.needsFull = true
		return Changes{}, err
	}
	if e.needsFull {
		rows, err := e.currentEventsLocked(ctx)
		if err != nil {
			return Changes{}, err
		}
		e.log.Info("resynchronized event snapshot", "events", len(rows))
		return Changes{Resorted: rows}, nil
	}

	changes, err := e.applyLocked(ctx, ids)
	if err != nil {
		e.needsFull = true
		return Changes{}, err
	}
	return changes, nil
}

// applyLocked folds the drained ids into the snapshot.
func (e *Engine) applyLocked(ctx context.Context, ids []int64) (Changes, error) {
	var (
		changes Changes
		added   []events.Event
		changed []events.Event
		resort  bool
		err     error
	)
	removed := e.src.RemovedIDs()
	for _, id := range ids {
		if _, gone := removed[id]; gone {
			e.dropLocked(id)
			changes.Removed = append(changes.Removed, id)
			continue
		}

		ev, err := eventsource.WithRetry(ctx, "fetch event", nil, func(ctx context.Context) (events.Event, error) {
			return e.src.FetchEvent(ctx, id)
		})
		if errors.Is(err, eventsource.ErrNotFound) {
			e.dropLocked(id)
			changes.Removed = append(changes.Removed, id)
			continue
		}
		if err != nil {
			return Changes{}, err
		}

		if !slices.Contains(e.order, id) {
			e.order = slices.Insert(e.order, 0, id)
			e.snap.Prepend(ev)
			added = append(added, ev)
		} else {
			e.snap.Put(ev)
			changed = append(changed, ev)
		}
		resort = true
	}

	metrics.ChangedEventsTotal.WithLabelValues("removed").Add(float64(len(changes.Removed)))
	metrics.ChangedEventsTotal.WithLabelValues("added").Add(float64(len(added)))
	metrics.ChangedEventsTotal.WithLabelValues("modified").Add(float64(len(changed)))

	if changes.Added, err = e.projectAllLocked(ctx, added); err != nil {
		return Changes{}, err
	}
	if changes.Modified, err = e.projectAllLocked(ctx, changed); err != nil {
		return Changes{}, err
	}

	if resort || e.staleLocked() {
		if changes.Resorted, err = e.resortLocked(ctx); err != nil {
			return Changes{}, err
		}
	}
	return changes, nil
}

// CurrentEvents fetches every event, replaces the cached snapshot and
// returns the full table in the session's sort order.
func (e *Engine) CurrentEvents(ctx context.Context) ([]eventtable.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	return e.currentEventsLocked(ctx)
}

func (e *Engine) currentEventsLocked(ctx context.Context) ([]eventtable.Row, error) {
	if err := e.connectedLocked(); err != nil {
		return nil, err
	}
	evs, err := eventsource.WithRetry(ctx, "fetch events", nil, e.src.FetchEvents)
	if err != nil {
		return nil, err
	}
	metrics.FullFetchesTotal.Inc()

	e.snap = events.NewSnapshot(evs)
	e.pruneUILocked()
	rows, err := e.resortLocked(ctx)
	if err != nil {
		e.needsFull = true
		return nil, err
	}
	e.needsFull = false
	return rows, nil
}

// resortLocked sorts the snapshot, resets the ordered id list and the
// staleness clock, and projects every row.
func (e *Engine) resortLocked(ctx context.Context) ([]eventtable.Row, error) {
	now := e.opts.Now()
	sorted := events.Sort(e.snap, e.sortBy, now)
	rows, err := e.projectAllLocked(ctx, sorted.Events())
	if err != nil {
		return nil, err
	}
	e.order = sorted.IDs()
	e.lastFull = now
	if rows == nil {
		rows = []eventtable.Row{}
	}
	return rows, nil
}

func (e *Engine) staleLocked() bool {
	return e.lastFull.IsZero() || e.opts.Now().Sub(e.lastFull) >= e.opts.StaleAfter
}

func (e *Engine) dropLocked(id int64) {
	e.order = slices.DeleteFunc(e.order, func(v int64) bool { return v == id })
	e.snap.Delete(id)
	key := idKey(id)
	delete(e.selected, key)
	delete(e.expanded, key)
}

func (e *Engine) projectLocked(ctx context.Context, ev events.Event) (eventtable.Row, error) {
	key := idKey(ev.ID)
	_, expanded := e.expanded[key]
	_, selected := e.selected[key]
	return e.projector.Project(ctx, e.src, ev, expanded, selected)
}

func (e *Engine) projectAllLocked(ctx context.Context, evs []events.Event) ([]eventtable.Row, error) {
	if len(evs) == 0 {
		return nil, nil
	}
	rows := make([]eventtable.Row, 0, len(evs))
	for _, ev := range evs {
		row, err := e.projectLocked(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }
