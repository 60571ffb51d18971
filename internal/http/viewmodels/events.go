package viewmodels

import (
	"github.com/howitz/howitz/internal/events"
	"github.com/howitz/howitz/internal/eventtable"
)

type EventsViewData struct {
	Layout LayoutData
	Table  EventTableData
}

// EventTableData is the whole events table, used for the first render and
// after every full resort.
type EventTableData struct {
	Rows          []eventtable.Row
	Sort          events.SortStrategy
	SortOptions   []events.SortOption
	SelectedCount int
	// PollInterval is the refresh trigger, e.g. "30s".
	PollInterval string
}

// EventRefreshData is a delta update. Only the slices with content are
// rendered as out-of-band swaps.
type EventRefreshData struct {
	Removed  []int64
	Modified []eventtable.Row
	Added    []eventtable.Row
}

type EventStatusFormData struct {
	Row       eventtable.Row
	AdmStates []events.AdmState
	// Bulk forms post to the bulk endpoint and carry no row.
	Bulk bool
}

type EventBulkData struct {
	Rows          []eventtable.Row
	SelectedCount int
	Alert         *AlertViewData
}
