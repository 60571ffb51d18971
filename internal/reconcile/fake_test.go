package reconcile

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/howitz/howitz/internal/events"
	"github.com/howitz/howitz/internal/eventsource"
	"github.com/howitz/howitz/internal/eventtable"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeConnector struct {
	src   *fakeSource
	err   error
	calls int
}

func (c *fakeConnector) Connect(_ context.Context, creds eventsource.Credentials) (eventsource.Source, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	c.src.closed = false
	c.src.user = creds.Username
	return c.src, nil
}

// fakeSource is a scriptable single-connection event source.
type fakeSource struct {
	user    string
	order   []int64
	events  map[int64]events.Event
	removed map[int64]struct{}
	pending []int64
	closed  bool

	subscribeErrs  []error
	subscribeCalls int
	fetchErrs      map[int64][]error
	fetchAllErrs   []error
	pollErrs       []error
	changeErr      error

	stateChanges []int64
	history      map[int64][]string
}

func newFakeSource(evs ...events.Event) *fakeSource {
	s := &fakeSource{
		events:    map[int64]events.Event{},
		removed:   map[int64]struct{}{},
		fetchErrs: map[int64][]error{},
		history:   map[int64][]string{},
	}
	for _, e := range evs {
		s.put(e)
	}
	return s
}

func (s *fakeSource) put(e events.Event) {
	if _, ok := s.events[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.events[e.ID] = e
}

func (s *fakeSource) remove(id int64) {
	delete(s.events, id)
	s.order = slices.DeleteFunc(s.order, func(v int64) bool { return v == id })
	s.removed[id] = struct{}{}
}

func (s *fakeSource) notify(ids ...int64) { s.pending = append(s.pending, ids...) }

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (s *fakeSource) FetchEvents(context.Context) ([]events.Event, error) {
	if err := pop(&s.fetchAllErrs); err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.events[id])
	}
	return out, nil
}

func (s *fakeSource) FetchEvent(_ context.Context, id int64) (events.Event, error) {
	errs := s.fetchErrs[id]
	if err := pop(&errs); err != nil {
		s.fetchErrs[id] = errs
		return events.Event{}, err
	}
	e, ok := s.events[id]
	if !ok {
		return events.Event{}, fmt.Errorf("event %d: %w", id, eventsource.ErrNotFound)
	}
	return e, nil
}

func (s *fakeSource) FetchLog(context.Context, int64) ([]events.LogEntry, error) {
	return nil, nil
}

func (s *fakeSource) FetchHistory(context.Context, int64) ([]events.HistoryEntry, error) {
	return nil, nil
}

func (s *fakeSource) Subscribe(context.Context) (eventsource.Updater, error) {
	s.subscribeCalls++
	if err := pop(&s.subscribeErrs); err != nil {
		return nil, err
	}
	return &fakeUpdater{src: s}, nil
}

func (s *fakeSource) RemovedIDs() map[int64]struct{} {
	out := make(map[int64]struct{}, len(s.removed))
	for id := range s.removed {
		out[id] = struct{}{}
	}
	return out
}

func (s *fakeSource) ChangeAdminState(_ context.Context, id int64, state events.AdmState) error {
	if s.changeErr != nil {
		return s.changeErr
	}
	e, ok := s.events[id]
	if !ok {
		return eventsource.ErrNotFound
	}
	if e.AdmState == events.AdmClosed {
		return eventsource.ErrEventClosed
	}
	e.AdmState = state
	s.events[id] = e
	s.stateChanges = append(s.stateChanges, id)
	return nil
}

func (s *fakeSource) AddHistoryEntry(_ context.Context, id int64, text string) error {
	s.history[id] = append(s.history[id], text)
	return nil
}

func (s *fakeSource) ClearFlapping(_ context.Context, id int64) (bool, error) {
	e, ok := s.events[id]
	if !ok {
		return false, eventsource.ErrNotFound
	}
	p, ok := e.Detail.(events.PortState)
	if !ok {
		return false, nil
	}
	p.Flaps = 0
	e.Detail = p
	s.events[id] = e
	return true, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// connectorFunc adapts a function to eventsource.Connector.
type connectorFunc func(context.Context, eventsource.Credentials) (eventsource.Source, error)

func (f connectorFunc) Connect(ctx context.Context, creds eventsource.Credentials) (eventsource.Source, error) {
	return f(ctx, creds)
}

// stalledSource blocks FetchEvents until release is closed.
type stalledSource struct {
	*fakeSource
	entered chan struct{}
	release chan struct{}
}

func newStalledSource() *stalledSource {
	return &stalledSource{
		fakeSource: newFakeSource(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (s *stalledSource) FetchEvents(ctx context.Context) ([]events.Event, error) {
	close(s.entered)
	select {
	case <-s.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeUpdater struct {
	src *fakeSource
}

func (u *fakeUpdater) Poll(context.Context) (int64, bool, error) {
	if err := pop(&u.src.pollErrs); err != nil {
		return 0, false, err
	}
	if len(u.src.pending) == 0 {
		return 0, false, nil
	}
	id := u.src.pending[0]
	u.src.pending = u.src.pending[1:]
	return id, true, nil
}

func (u *fakeUpdater) Close() error { return nil }

func portEvent(id int64, state events.AdmState, updated time.Time) events.Event {
	return events.Event{
		ID:       id,
		AdmState: state,
		Router:   "gw",
		Opened:   updated,
		Updated:  updated,
		Detail:   events.PortState{Port: fmt.Sprintf("ge-0/0/%d", id), OperState: events.PortDown},
	}
}

func rowIDs(rows []eventtable.Row) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}
