package eventsource

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/howitz/howitz/internal/events"
)

// Hub is an in-memory event source shared by every connection made through
// it. Mutations are fanned out to all live subscriptions.
type Hub struct {
	mu      sync.Mutex
	order   []int64
	events  map[int64]events.Event
	logs    map[int64][]events.LogEntry
	history map[int64][]events.HistoryEntry
	removed map[int64]struct{}
	subs    map[*hubUpdater]struct{}
	tokens  map[string]string
	now     func() time.Time
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithTokens restricts Connect to the given username → token pairs. Without
// it any non-empty token is accepted.
func WithTokens(tokens map[string]string) HubOption {
	return func(h *Hub) {
		h.tokens = make(map[string]string, len(tokens))
		for user, token := range tokens {
			h.tokens[user] = token
		}
	}
}

// WithClock overrides the time source used for state-change timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub returns an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		events:  make(map[int64]events.Event),
		logs:    make(map[int64][]events.LogEntry),
		history: make(map[int64][]events.HistoryEntry),
		removed: make(map[int64]struct{}),
		subs:    make(map[*hubUpdater]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect implements Connector.
func (h *Hub) Connect(ctx context.Context, creds Credentials) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user := strings.TrimSpace(creds.Username)
	if user == "" || creds.Token == "" {
		return nil, ErrAuthentication
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tokens != nil && h.tokens[user] != creds.Token {
		return nil, ErrAuthentication
	}
	return &hubConn{hub: h, user: user}, nil
}

// Upsert adds or replaces an event and notifies subscribers.
func (h *Hub) Upsert(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.events[e.ID]; !ok {
		h.order = append(h.order, e.ID)
	}
	delete(h.removed, e.ID)
	h.events[e.ID] = e
	h.notifyLocked(e.ID)
}

// AppendLog adds a log line to an event.
func (h *Hub) AppendLog(id int64, entry events.LogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs[id] = append(h.logs[id], entry)
}

// Remove deletes an event, records it as removed and notifies subscribers.
func (h *Hub) Remove(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.events[id]; !ok {
		return
	}
	delete(h.events, id)
	delete(h.logs, id)
	delete(h.history, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.removed[id] = struct{}{}
	h.notifyLocked(id)
}

// Len returns the number of open events.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

func (h *Hub) notifyLocked(id int64) {
	for u := range h.subs {
		u.push(id)
	}
}

type hubConn struct {
	hub  *Hub
	user string

	mu     sync.Mutex
	closed bool
	subs   []*hubUpdater
}

func (c *hubConn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrLostConnection
	}
	return nil
}

func (c *hubConn) FetchEvents(ctx context.Context) ([]events.Event, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.Event, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.events[id])
	}
	return out, nil
}

func (c *hubConn) FetchEvent(ctx context.Context, id int64) (events.Event, error) {
	if err := c.check(ctx); err != nil {
		return events.Event{}, err
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.events[id]
	if !ok {
		return events.Event{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return e, nil
}

func (c *hubConn) FetchLog(ctx context.Context, id int64) ([]events.LogEntry, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.events[id]; !ok {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return append([]events.LogEntry(nil), h.logs[id]...), nil
}

func (c *hubConn) FetchHistory(ctx context.Context, id int64) ([]events.HistoryEntry, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.events[id]; !ok {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return append([]events.HistoryEntry(nil), h.history[id]...), nil
}

func (c *hubConn) Subscribe(ctx context.Context) (Updater, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	u := &hubUpdater{conn: c}
	c.hub.mu.Lock()
	c.hub.subs[u] = struct{}{}
	c.hub.mu.Unlock()

	c.mu.Lock()
	c.subs = append(c.subs, u)
	c.mu.Unlock()
	return u, nil
}

func (c *hubConn) RemovedIDs() map[int64]struct{} {
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int64]struct{}, len(h.removed))
	for id := range h.removed {
		out[id] = struct{}{}
	}
	return out
}

func (c *hubConn) ChangeAdminState(ctx context.Context, id int64, state events.AdmState) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if !state.Known() {
		return fmt.Errorf("%w: %q", events.ErrInvalidAdmState, state)
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.events[id]
	if !ok {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if e.AdmState == events.AdmClosed {
		return fmt.Errorf("event %d: %w", id, ErrEventClosed)
	}
	now := h.now()
	h.history[id] = append(h.history[id], events.HistoryEntry{
		Date:    now,
		User:    c.user,
		Message: fmt.Sprintf("state change %s -> %s (%s)", e.AdmState, state, c.user),
	})
	e.AdmState = state
	e.Updated = now
	h.events[id] = e
	h.notifyLocked(id)
	return nil
}

func (c *hubConn) AddHistoryEntry(ctx context.Context, id int64, text string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.events[id]; !ok {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	h.history[id] = append(h.history[id], events.HistoryEntry{Date: h.now(), User: c.user, Message: text})
	h.notifyLocked(id)
	return nil
}

func (c *hubConn) ClearFlapping(ctx context.Context, id int64) (bool, error) {
	if err := c.check(ctx); err != nil {
		return false, err
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.events[id]
	if !ok {
		return false, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	p, ok := e.Detail.(events.PortState)
	if !ok {
		return false, nil
	}
	p.Flaps = 0
	p.FlapState = "stable"
	e.Detail = p
	e.Updated = h.now()
	h.events[id] = e
	h.notifyLocked(id)
	return true, nil
}

func (c *hubConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, u := range subs {
		_ = u.Close()
	}
	return nil
}

type hubUpdater struct {
	conn *hubConn

	mu      sync.Mutex
	pending []int64
	closed  bool
}

func (u *hubUpdater) push(id int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.closed {
		u.pending = append(u.pending, id)
	}
}

func (u *hubUpdater) Poll(ctx context.Context) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, false, ErrLostConnection
	}
	if len(u.pending) == 0 {
		return 0, false, nil
	}
	id := u.pending[0]
	u.pending = u.pending[1:]
	return id, true, nil
}

func (u *hubUpdater) Close() error {
	u.mu.Lock()
	u.closed = true
	u.pending = nil
	u.mu.Unlock()

	h := u.conn.hub
	h.mu.Lock()
	delete(h.subs, u)
	h.mu.Unlock()
	return nil
}
