package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/howitz/howitz/internal/events"
	"github.com/howitz/howitz/internal/eventsource"
	"github.com/howitz/howitz/internal/eventtable"
	"github.com/howitz/howitz/internal/metrics"
)

// SetSortPreference validates name and makes it the session's ordering. The
// next refresh resorts.
func (e *Engine) SetSortPreference(name string) error {
	strategy, err := events.ParseSortStrategy(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	e.sortBy = strategy
	e.lastFull = time.Time{}
	return nil
}

// SortPreference returns the session's ordering.
func (e *Engine) SortPreference() events.SortStrategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortBy
}

// Select marks id as checked, remembering its event type.
func (e *Engine) Select(id int64, tag events.Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	e.selected[idKey(id)] = tag
}

// Unselect removes the check mark from id.
func (e *Engine) Unselect(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	delete(e.selected, idKey(id))
}

// Selected returns a copy of the selection state.
func (e *Engine) Selected() map[string]events.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.selected)
}

// Expand marks id as expanded.
func (e *Engine) Expand(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	e.expanded[idKey(id)] = struct{}{}
}

// Collapse clears the expanded mark of id.
func (e *Engine) Collapse(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	delete(e.expanded, idKey(id))
}

// Expanded returns a copy of the expansion state.
func (e *Engine) Expanded() map[string]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.expanded)
}

// ClearUIState forgets every selection and expansion.
func (e *Engine) ClearUIState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	e.clearUILocked()
}

func (e *Engine) clearUILocked() {
	clear(e.selected)
	clear(e.expanded)
}

func (e *Engine) pruneUILocked() {
	maps.DeleteFunc(e.selected, func(k string, _ events.Type) bool { return !e.hasKeyLocked(k) })
	maps.DeleteFunc(e.expanded, func(k string, _ struct{}) bool { return !e.hasKeyLocked(k) })
}

func (e *Engine) hasKeyLocked(key string) bool {
	id, err := strconv.ParseInt(key, 10, 64)
	return err == nil && e.snap.Has(id)
}

// ExpandedRow marks id as expanded and returns its row with details.
func (e *Engine) ExpandedRow(ctx context.Context, id int64) (eventtable.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()

	ev, err := e.eventLocked(ctx, id)
	if err != nil {
		return eventtable.Row{}, err
	}
	e.expanded[idKey(id)] = struct{}{}
	return e.projectLocked(ctx, ev)
}

// CollapsedRow clears the expanded mark of id and returns its plain row.
func (e *Engine) CollapsedRow(ctx context.Context, id int64) (eventtable.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()

	delete(e.expanded, idKey(id))
	ev, err := e.eventLocked(ctx, id)
	if err != nil {
		return eventtable.Row{}, err
	}
	return e.projectLocked(ctx, ev)
}

// Row returns the current row of id.
func (e *Engine) Row(ctx context.Context, id int64) (eventtable.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()

	ev, err := e.eventLocked(ctx, id)
	if err != nil {
		return eventtable.Row{}, err
	}
	return e.projectLocked(ctx, ev)
}

// eventLocked returns id from the snapshot, falling back to the source.
func (e *Engine) eventLocked(ctx context.Context, id int64) (events.Event, error) {
	if ev, ok := e.snap.Get(id); ok {
		return ev, nil
	}
	if err := e.connectedLocked(); err != nil {
		return events.Event{}, err
	}
	ev, err := eventsource.WithRetry(ctx, "fetch event", nil, func(ctx context.Context) (events.Event, error) {
		return e.src.FetchEvent(ctx, id)
	})
	if err != nil {
		return events.Event{}, err
	}
	return ev, nil
}

// UpdateStatus sets the admin state of id and appends history. The state
// change is skipped when it would not change anything, and empty history is
// not recorded. Changing a closed event fails with ErrEventClosed.
func (e *Engine) UpdateStatus(ctx context.Context, id int64, state events.AdmState, history string) (eventtable.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	return e.updateStatusLocked(ctx, id, state, history)
}

func (e *Engine) updateStatusLocked(ctx context.Context, id int64, state events.AdmState, history string) (eventtable.Row, error) {
	if !state.Known() {
		return eventtable.Row{}, fmt.Errorf("%w: %q", events.ErrInvalidAdmState, state)
	}
	if err := e.connectedLocked(); err != nil {
		return eventtable.Row{}, err
	}
	current, err := e.eventLocked(ctx, id)
	if err != nil {
		return eventtable.Row{}, err
	}

	if current.AdmState != state {
		err := eventsource.Do(ctx, "change admin state", nil, func(ctx context.Context) error {
			return e.src.ChangeAdminState(ctx, id, state)
		})
		if err != nil {
			metrics.StateChangesTotal.WithLabelValues("error").Inc()
			return eventtable.Row{}, fmt.Errorf("event %d: %w", id, err)
		}
		metrics.StateChangesTotal.WithLabelValues("success").Inc()
		e.log.Info("event state changed", "event_id", id, "from", string(current.AdmState), "to", string(state))
	}

	if text := strings.TrimSpace(history); text != "" {
		err := eventsource.Do(ctx, "add history", nil, func(ctx context.Context) error {
			return e.src.AddHistoryEntry(ctx, id, text)
		})
		if err != nil {
			return eventtable.Row{}, fmt.Errorf("event %d: %w", id, err)
		}
	}

	return e.reloadLocked(ctx, id)
}

// BulkUpdateStatus applies UpdateStatus to every selected event in table
// order and clears the selection. Closed events are skipped and reported in
// the returned error once every other event has been updated.
func (e *Engine) BulkUpdateStatus(ctx context.Context, state events.AdmState, history string) ([]eventtable.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()

	if !state.Known() {
		return nil, fmt.Errorf("%w: %q", events.ErrInvalidAdmState, state)
	}
	var (
		rows    []eventtable.Row
		skipped []error
	)
	for _, id := range e.selectedIDsLocked() {
		row, err := e.updateStatusLocked(ctx, id, state, history)
		if errors.Is(err, eventsource.ErrEventClosed) {
			skipped = append(skipped, err)
			continue
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	clear(e.selected)
	for i := range rows {
		rows[i].Selected = false
	}
	return rows, errors.Join(skipped...)
}

// ClearFlapping resets the flap counter of id. ok is false when the event
// type does not track flapping.
func (e *Engine) ClearFlapping(ctx context.Context, id int64) (eventtable.Row, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()
	return e.clearFlappingLocked(ctx, id)
}

func (e *Engine) clearFlappingLocked(ctx context.Context, id int64) (eventtable.Row, bool, error) {
	if err := e.connectedLocked(); err != nil {
		return eventtable.Row{}, false, err
	}
	ok, err := eventsource.WithRetry(ctx, "clear flapping", nil, func(ctx context.Context) (bool, error) {
		return e.src.ClearFlapping(ctx, id)
	})
	if err != nil {
		return eventtable.Row{}, false, fmt.Errorf("event %d: %w", id, err)
	}
	row, err := e.reloadLocked(ctx, id)
	return row, ok, err
}

// BulkClearFlapping clears flapping on every selected port state event.
func (e *Engine) BulkClearFlapping(ctx context.Context) ([]eventtable.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch()

	var rows []eventtable.Row
	for _, id := range e.selectedIDsLocked() {
		if e.selected[idKey(id)] != events.TypePortState {
			continue
		}
		row, ok, err := e.clearFlappingLocked(ctx, id)
		if err != nil {
			return rows, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// selectedIDsLocked returns the selected ids in table order followed by any
// selected ids the table does not hold.
func (e *Engine) selectedIDsLocked() []int64 {
	out := make([]int64, 0, len(e.selected))
	seen := make(map[string]struct{}, len(e.selected))
	for _, id := range e.order {
		key := idKey(id)
		if _, ok := e.selected[key]; ok {
			out = append(out, id)
			seen[key] = struct{}{}
		}
	}
	var rest []int64
	for key := range e.selected {
		if _, ok := seen[key]; ok {
			continue
		}
		if id, err := strconv.ParseInt(key, 10, 64); err == nil {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// reloadLocked refetches id after a write and updates the snapshot.
func (e *Engine) reloadLocked(ctx context.Context, id int64) (eventtable.Row, error) {
	ev, err := eventsource.WithRetry(ctx, "fetch event", nil, func(ctx context.Context) (events.Event, error) {
		return e.src.FetchEvent(ctx, id)
	})
	if err != nil {
		return eventtable.Row{}, err
	}
	if e.snap.Has(id) {
		e.snap.Put(ev)
	}
	return e.projectLocked(ctx, ev)
}
