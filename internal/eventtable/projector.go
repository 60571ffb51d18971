// Package eventtable projects events into the rows the events table renders.
package eventtable

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/howitz/howitz/internal/events"
	"github.com/howitz/howitz/internal/eventsource"
	"golang.org/x/sync/errgroup"
)

// Row is one line of the events table.
type Row struct {
	ID          int64
	Type        events.Type
	AdmState    events.AdmState
	Router      string
	Color       events.EventColor
	OpState     string
	Description string
	Port        string
	Age         string
	Downtime    string
	Priority    int
	Opened      time.Time
	Updated     time.Time
	Attributes  []events.Attribute

	Selected bool
	Expanded bool
	// Details is only set for expanded rows.
	Details *Details
}

// Details is the extra content of an expanded row.
type Details struct {
	Attributes []events.Attribute
	Logs       []events.LogEntry
	History    []events.HistoryEntry
	// Messages merges logs and history, oldest first.
	Messages []Message
}

// Message is a log or history line in the merged message list.
type Message struct {
	Date    time.Time
	User    string
	Text    string
	History bool
}

// DetailSource is the part of the event source an expanded row reads from.
type DetailSource interface {
	FetchLog(ctx context.Context, id int64) ([]events.LogEntry, error)
	FetchHistory(ctx context.Context, id int64) ([]events.HistoryEntry, error)
}

// Projector turns events into rows. The zero value uses the wall clock.
type Projector struct {
	Now func() time.Time
}

func (p Projector) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Row projects e without touching the event source.
func (p Projector) Row(e events.Event, selected bool) Row {
	now := p.now()
	row := Row{
		ID:         e.ID,
		Type:       e.Type(),
		AdmState:   e.AdmState,
		Router:     e.Router,
		Color:      events.Color(e),
		Priority:   events.Priority(e),
		Opened:     e.Opened,
		Updated:    e.Updated,
		Attributes: e.Attributes(),
		Selected:   selected,
	}
	if !e.Opened.IsZero() {
		row.Age = FormatAge(now.Sub(e.Opened))
	}
	if e.Detail != nil {
		row.OpState = e.Detail.OpState()
		row.Port = e.Detail.PortLabel()
		row.Description = e.Detail.Description(e.LastEvent)
	}
	if e.Type() == events.TypePortState {
		row.Downtime = FormatDowntime(e.Downtime(now))
	}
	return row
}

// Project projects e and, when expanded, attaches its details from src.
// Transient failures are retried once; a second failure is returned.
func (p Projector) Project(ctx context.Context, src DetailSource, e events.Event, expanded, selected bool) (Row, error) {
	row := p.Row(e, selected)
	if !expanded {
		return row, nil
	}
	details, err := p.Details(ctx, src, e)
	if err != nil {
		return Row{}, err
	}
	row.Expanded = true
	row.Details = details
	return row, nil
}

// Details fetches log and history for e concurrently.
func (p Projector) Details(ctx context.Context, src DetailSource, e events.Event) (*Details, error) {
	var (
		logs    []events.LogEntry
		history []events.HistoryEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logs, err = eventsource.WithRetry(gctx, "fetch log", nil, func(ctx context.Context) ([]events.LogEntry, error) {
			return src.FetchLog(ctx, e.ID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		history, err = eventsource.WithRetry(gctx, "fetch history", nil, func(ctx context.Context) ([]events.HistoryEntry, error) {
			return src.FetchHistory(ctx, e.ID)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Details{
		Attributes: e.Attributes(),
		Logs:       logs,
		History:    history,
		Messages:   mergeMessages(logs, history),
	}, nil
}

func mergeMessages(logs []events.LogEntry, history []events.HistoryEntry) []Message {
	out := make([]Message, 0, len(logs)+len(history))
	for _, l := range logs {
		out = append(out, Message{Date: l.Date, Text: l.Message})
	}
	for _, h := range history {
		out = append(out, Message{Date: h.Date, User: h.User, Text: h.Message, History: true})
	}
	slices.SortStableFunc(out, func(a, b Message) int { return cmp.Compare(a.Date.UnixNano(), b.Date.UnixNano()) })
	return out
}
