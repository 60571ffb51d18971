// Package events holds the Zino event model together with the pure
// classification, colouring and ordering functions used to display it.
package events

import (
	"strconv"
	"time"
)

// Type is the variant tag of an event.
type Type string

const (
	TypePortState    Type = "portstate"
	TypeBGP          Type = "bgp"
	TypeBFD          Type = "bfd"
	TypeReachability Type = "reachability"
	TypeAlarm        Type = "alarm"
	TypeUnknown      Type = "unknown"
)

// ParseType maps a raw type name onto a known Type, falling back to TypeUnknown.
func ParseType(raw string) Type {
	switch Type(raw) {
	case TypePortState, TypeBGP, TypeBFD, TypeReachability, TypeAlarm:
		return Type(raw)
	default:
		return TypeUnknown
	}
}

// Event is a read-only copy of an event owned by the event source.
type Event struct {
	ID        int64
	AdmState  AdmState
	Router    string
	Opened    time.Time
	Updated   time.Time
	Priority  int
	LastEvent string

	// Detail is the type-specific sub-state. A nil Detail is an event of
	// unknown type.
	Detail Detail
}

// Type returns the variant tag of the event.
func (e Event) Type() Type {
	if e.Detail == nil {
		return TypeUnknown
	}
	return e.Detail.Type()
}

// IsDown reports whether the event signals a disturbance.
func (e Event) IsDown() bool {
	if e.Detail == nil {
		return false
	}
	return e.Detail.IsDown()
}

// Downtime returns the accumulated downtime at now. Only port state events
// track downtime; everything else reports zero.
func (e Event) Downtime(now time.Time) time.Duration {
	p, ok := e.Detail.(PortState)
	if !ok {
		return 0
	}
	return p.Downtime(now)
}

// Attributes returns the raw fields of the event in a stable order.
func (e Event) Attributes() []Attribute {
	attrs := []Attribute{
		{Name: "id", Value: strconv.FormatInt(e.ID, 10)},
		{Name: "type", Value: string(e.Type())},
		{Name: "state", Value: string(e.AdmState)},
		{Name: "router", Value: e.Router},
		{Name: "opened", Value: formatTimestamp(e.Opened)},
		{Name: "updated", Value: formatTimestamp(e.Updated)},
		{Name: "priority", Value: strconv.Itoa(e.Priority)},
	}
	if e.LastEvent != "" {
		attrs = append(attrs, Attribute{Name: "lastevent", Value: e.LastEvent})
	}
	if e.Detail != nil {
		attrs = append(attrs, e.Detail.Attributes()...)
	}
	return attrs
}

// Attribute is a single name/value pair of an event attribute dump.
type Attribute struct {
	Name  string
	Value string
}

// LogEntry is a line from the event's log.
type LogEntry struct {
	Date    time.Time
	Message string
}

// HistoryEntry is an operator or system history record of an event.
type HistoryEntry struct {
	Date    time.Time
	User    string
	Message string
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
