package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/howitz/howitz/internal/events"
	"github.com/howitz/howitz/internal/eventsource"
	"github.com/howitz/howitz/internal/eventtable"
	"github.com/howitz/howitz/internal/http/viewmodels"
	"github.com/howitz/howitz/internal/http/views"
	"github.com/howitz/howitz/internal/reconcile"
	"github.com/labstack/echo/v5"
)

const defaultPollInterval = "30s"

func (h *Handlers) HandleIndex(c *echo.Context) error {
	return c.Redirect(http.StatusSeeOther, "/events")
}

// HandleEvents renders the events page from a fresh full fetch.
func (h *Handlers) HandleEvents(c *echo.Context) error {
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	rows, err := e.CurrentEvents(c.Request().Context())
	if err != nil {
		return h.engineError(c, err)
	}
	return h.RenderComponent(c, views.EventsPage(viewmodels.EventsViewData{
		Layout: h.LayoutData(c, "Events"),
		Table:  h.tableData(e, rows),
	}))
}

// HandleEventsTable re-renders the whole table.
func (h *Handlers) HandleEventsTable(c *echo.Context) error {
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	rows, err := e.CurrentEvents(c.Request().Context())
	if err != nil {
		return h.engineError(c, err)
	}
	addVary(c, hxRequest)
	return h.RenderComponent(c, views.EventTable(h.tableData(e, rows)))
}

// HandleEventsRefresh applies pending changes. A full resort replaces the
// table; otherwise only the changed rows are swapped.
func (h *Handlers) HandleEventsRefresh(c *echo.Context) error {
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	changes, err := e.Refresh(c.Request().Context())
	if err != nil {
		return h.engineError(c, err)
	}
	addVary(c, hxRequest)

	if changes.Full() {
		retarget(c, "#eventlist", "outerHTML")
		return h.RenderComponent(c, views.EventTable(h.tableData(e, changes.Resorted)))
	}
	if changes.Empty() {
		return c.NoContent(http.StatusNoContent)
	}

	// Each added row is prepended, so the last one ends up on top.
	added := slices.Clone(changes.Added)
	slices.Reverse(added)
	return h.RenderComponent(c, views.EventRefresh(viewmodels.EventRefreshData{
		Removed:  changes.Removed,
		Modified: changes.Modified,
		Added:    added,
	}))
}

func (h *Handlers) HandleEventsSort(c *echo.Context) error {
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	if err := e.SetSortPreference(c.FormValue("sort")); err != nil {
		return h.engineError(c, err)
	}
	rows, err := e.CurrentEvents(c.Request().Context())
	if err != nil {
		return h.engineError(c, err)
	}
	return h.RenderComponent(c, views.EventTable(h.tableData(e, rows)))
}

func (h *Handlers) HandleEventExpand(c *echo.Context) error {
	return h.withEventRow(c, func(e *reconcile.Engine, id int64) (eventtable.Row, error) {
		return e.ExpandedRow(c.Request().Context(), id)
	})
}

func (h *Handlers) HandleEventCollapse(c *echo.Context) error {
	return h.withEventRow(c, func(e *reconcile.Engine, id int64) (eventtable.Row, error) {
		return e.CollapsedRow(c.Request().Context(), id)
	})
}

func (h *Handlers) HandleEventSelect(c *echo.Context) error {
	return h.withEventRow(c, func(e *reconcile.Engine, id int64) (eventtable.Row, error) {
		e.Select(id, events.ParseType(strings.TrimSpace(c.QueryParam("type"))))
		return e.Row(c.Request().Context(), id)
	})
}

func (h *Handlers) HandleEventUnselect(c *echo.Context) error {
	return h.withEventRow(c, func(e *reconcile.Engine, id int64) (eventtable.Row, error) {
		e.Unselect(id)
		return e.Row(c.Request().Context(), id)
	})
}

// HandleEventStatusForm renders the update-status dialog.
func (h *Handlers) HandleEventStatusForm(c *echo.Context) error {
	id, ok := parseEventID(c)
	if !ok {
		return h.RenderBadRequest(c, "invalid event id")
	}
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	row, err := e.Row(c.Request().Context(), id)
	if err != nil {
		return h.engineError(c, err)
	}
	return h.RenderComponent(c, views.StatusForm(viewmodels.EventStatusFormData{
		Row:       row,
		AdmStates: events.AdmStates,
	}))
}

// HandleEventStatusUpdate changes the admin state and adds the history text.
func (h *Handlers) HandleEventStatusUpdate(c *echo.Context) error {
	state, err := events.ParseAdmState(c.FormValue("state"))
	if err != nil {
		return h.engineError(c, err)
	}
	history := c.FormValue("history")
	return h.withEventRow(c, func(e *reconcile.Engine, id int64) (eventtable.Row, error) {
		return e.UpdateStatus(c.Request().Context(), id, state, history)
	})
}

// HandleEventStatusCancel closes the dialog and restores the row.
func (h *Handlers) HandleEventStatusCancel(c *echo.Context) error {
	return h.withEventRow(c, func(e *reconcile.Engine, id int64) (eventtable.Row, error) {
		return e.Row(c.Request().Context(), id)
	})
}

func (h *Handlers) HandleEventClearFlapping(c *echo.Context) error {
	return h.withEventRow(c, func(e *reconcile.Engine, id int64) (eventtable.Row, error) {
		row, _, err := e.ClearFlapping(c.Request().Context(), id)
		return row, err
	})
}

func (h *Handlers) HandleBulkStatusForm(c *echo.Context) error {
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	if len(e.Selected()) == 0 {
		return h.RenderBadRequest(c, "No events selected.")
	}
	return h.RenderComponent(c, views.StatusForm(viewmodels.EventStatusFormData{
		AdmStates: events.AdmStates,
		Bulk:      true,
	}))
}

// HandleBulkStatusUpdate applies one state change to every selected event.
// Events that cannot be changed are reported in an alert while the rest are
// still updated.
func (h *Handlers) HandleBulkStatusUpdate(c *echo.Context) error {
	state, err := events.ParseAdmState(c.FormValue("state"))
	if err != nil {
		return h.engineError(c, err)
	}
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	rows, err := e.BulkUpdateStatus(c.Request().Context(), state, c.FormValue("history"))
	return h.renderBulk(c, e, rows, err)
}

func (h *Handlers) HandleBulkClearFlapping(c *echo.Context) error {
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	rows, err := e.BulkClearFlapping(c.Request().Context())
	return h.renderBulk(c, e, rows, err)
}

// HandleClearUIState drops selections and expansions and re-renders the
// table.
func (h *Handlers) HandleClearUIState(c *echo.Context) error {
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	e.ClearUIState()
	rows, err := e.CurrentEvents(c.Request().Context())
	if err != nil {
		return h.engineError(c, err)
	}
	return h.RenderComponent(c, views.EventTable(h.tableData(e, rows)))
}

func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *Handlers) withEventRow(c *echo.Context, fn func(*reconcile.Engine, int64) (eventtable.Row, error)) error {
	id, ok := parseEventID(c)
	if !ok {
		return h.RenderBadRequest(c, "invalid event id")
	}
	e, err := h.engine(c)
	if err != nil {
		return h.engineError(c, err)
	}
	row, err := fn(e, id)
	if err != nil {
		return h.engineError(c, err)
	}
	addVary(c, hxRequest)
	return h.RenderComponent(c, views.EventRow(row, len(e.Selected())))
}

func (h *Handlers) renderBulk(c *echo.Context, e *reconcile.Engine, rows []eventtable.Row, err error) error {
	data := viewmodels.EventBulkData{Rows: rows, SelectedCount: len(e.Selected())}
	if err != nil {
		if !errors.Is(err, eventsource.ErrEventClosed) {
			return h.engineError(c, err)
		}
		alert := h.logAlert(c, err)
		alert.Title = "Some events were not updated."
		alert.Message = "Closed events cannot change state."
		data.Alert = &alert
	}
	return h.RenderComponent(c, views.BulkResult(data))
}

func (h *Handlers) tableData(e *reconcile.Engine, rows []eventtable.Row) viewmodels.EventTableData {
	poll := defaultPollInterval
	if d := h.Cfg.Events.PollInterval; d > 0 {
		poll = d.String()
	}
	return viewmodels.EventTableData{
		Rows:          rows,
		Sort:          e.SortPreference(),
		SortOptions:   events.SortOptions(),
		SelectedCount: len(e.Selected()),
		PollInterval:  poll,
	}
}

// engineError turns engine and event source failures into responses.
// Unclassified errors are returned for the server's error handler.
func (h *Handlers) engineError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, eventsource.ErrLostConnection), errors.Is(err, eventsource.ErrAuthentication):
		return h.RenderLostConnection(c, err)
	case errors.Is(err, eventsource.ErrEventClosed):
		return h.RenderBadRequest(c, "Event is closed.")
	case errors.Is(err, eventsource.ErrNotFound):
		if isHX(c) {
			return h.renderAlert(c, http.StatusNotFound, h.logAlert(c, err))
		}
		return RenderNotFound(c)
	case errors.Is(err, events.ErrInvalidSort):
		return h.RenderBadRequest(c, "Unknown sort order.")
	case errors.Is(err, events.ErrInvalidAdmState):
		return h.RenderBadRequest(c, "Unknown event state.")
	default:
		return err
	}
}

// logAlert builds an alert for err and logs it under the alert id.
func (h *Handlers) logAlert(c *echo.Context, err error) viewmodels.AlertViewData {
	alert := viewmodels.AlertViewData{
		ID:      newAlertID(),
		Title:   "Request failed.",
		Message: "The event no longer exists.",
		Class:   "alert-warning",
	}
	c.Logger().Warn("event request failed", "request_id", requestID(c), "alert_id", alert.ID, "path", c.Request().URL.Path, "error", err)
	return alert
}
