package eventsource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/howitz/howitz/internal/events"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML document used to seed a Hub.
type Fixture struct {
	Tokens map[string]string `yaml:"tokens"`
	Events []FixtureEvent    `yaml:"events"`
}

// FixtureEvent is one event in a fixture, flattened the way the upstream
// attribute dump is.
type FixtureEvent struct {
	ID        int64     `yaml:"id"`
	Type      string    `yaml:"type"`
	State     string    `yaml:"state"`
	Router    string    `yaml:"router"`
	Opened    time.Time `yaml:"opened"`
	Updated   time.Time `yaml:"updated"`
	Priority  int       `yaml:"priority"`
	LastEvent string    `yaml:"lastevent"`

	Port      string        `yaml:"port"`
	IfIndex   int           `yaml:"ifindex"`
	PortState string        `yaml:"portstate"`
	Descr     string        `yaml:"descr"`
	Flaps     int           `yaml:"flaps"`
	FlapState string        `yaml:"flapstate"`
	AccDown   time.Duration `yaml:"ac_down"`
	LastTrans time.Time     `yaml:"lasttrans"`

	RemoteAddr string        `yaml:"remote_addr"`
	RemoteAS   int64         `yaml:"remote_as"`
	PeerUptime time.Duration `yaml:"peer_uptime"`
	BGPOS      string        `yaml:"bgpos"`
	BGPAS      string        `yaml:"bgpas"`

	BFDState  string `yaml:"bfdstate"`
	BFDIndex  int    `yaml:"bfdix"`
	BFDDiscr  int64  `yaml:"bfddiscr"`
	BFDAddr   string `yaml:"bfdaddr"`
	NeighRDNS string `yaml:"neigh_rdns"`

	Reachability string `yaml:"reachability"`

	AlarmType  string `yaml:"alarm_type"`
	AlarmCount int    `yaml:"alarm_count"`

	Log     []FixtureLog     `yaml:"log"`
	History []FixtureHistory `yaml:"history"`
}

// FixtureLog is a log line of a fixture event.
type FixtureLog struct {
	Date    time.Time `yaml:"date"`
	Message string    `yaml:"message"`
}

// FixtureHistory is a history entry of a fixture event.
type FixtureHistory struct {
	Date    time.Time `yaml:"date"`
	User    string    `yaml:"user"`
	Message string    `yaml:"message"`
}

// LoadFixtureFile reads and parses a fixture file.
func LoadFixtureFile(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, err
	}
	return ParseFixture(bytes.NewReader(raw))
}

// ParseFixture decodes a fixture document and validates event ids.
func ParseFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Fixture{}, nil
		}
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}

	seen := make(map[int64]struct{}, len(f.Events))
	for i, fe := range f.Events {
		if fe.ID <= 0 {
			return Fixture{}, fmt.Errorf("fixture event %d: id must be positive", i)
		}
		if _, dup := seen[fe.ID]; dup {
			return Fixture{}, fmt.Errorf("fixture event %d: duplicate id %d", i, fe.ID)
		}
		seen[fe.ID] = struct{}{}
	}
	return f, nil
}

// Event converts a fixture entry to the event model.
func (fe FixtureEvent) Event() events.Event {
	e := events.Event{
		ID:        fe.ID,
		AdmState:  events.NormalizeAdmState(fe.State),
		Router:    fe.Router,
		Opened:    fe.Opened.UTC(),
		Updated:   fe.Updated.UTC(),
		Priority:  fe.Priority,
		LastEvent: fe.LastEvent,
	}
	if e.Updated.IsZero() {
		e.Updated = e.Opened
	}

	switch events.ParseType(fe.Type) {
	case events.TypePortState:
		e.Detail = events.PortState{
			Port:      fe.Port,
			IfIndex:   fe.IfIndex,
			OperState: events.PortOperState(fe.PortState),
			Descr:     fe.Descr,
			Flaps:     fe.Flaps,
			FlapState: fe.FlapState,
			AccDown:   fe.AccDown,
			LastTrans: fe.LastTrans.UTC(),
		}
	case events.TypeBGP:
		e.Detail = events.BGP{
			RemoteAddr: fe.RemoteAddr,
			RemoteAS:   fe.RemoteAS,
			PeerUptime: fe.PeerUptime,
			OperState:  fe.BGPOS,
			AdminState: fe.BGPAS,
		}
	case events.TypeBFD:
		e.Detail = events.BFD{
			State:     events.BFDState(fe.BFDState),
			Index:     fe.BFDIndex,
			Discr:     fe.BFDDiscr,
			Addr:      fe.BFDAddr,
			NeighRDNS: fe.NeighRDNS,
		}
	case events.TypeReachability:
		e.Detail = events.Reachability{State: events.ReachabilityState(fe.Reachability)}
	case events.TypeAlarm:
		e.Detail = events.Alarm{AlarmType: fe.AlarmType, Count: fe.AlarmCount}
	}
	return e
}

// Seed loads every fixture event into h in document order.
func (f Fixture) Seed(h *Hub) {
	for _, fe := range f.Events {
		h.Upsert(fe.Event())
		for _, l := range fe.Log {
			h.AppendLog(fe.ID, events.LogEntry{Date: l.Date.UTC(), Message: l.Message})
		}
		if len(fe.History) > 0 {
			h.mu.Lock()
			for _, entry := range fe.History {
				h.history[fe.ID] = append(h.history[fe.ID], events.HistoryEntry{
					Date:    entry.Date.UTC(),
					User:    entry.User,
					Message: entry.Message,
				})
			}
			h.mu.Unlock()
		}
	}
}

// NewHubFromFixture builds a hub seeded with f. Tokens from the fixture
// restrict which credentials may connect.
func NewHubFromFixture(f Fixture, opts ...HubOption) *Hub {
	if len(f.Tokens) > 0 {
		opts = append([]HubOption{WithTokens(f.Tokens)}, opts...)
	}
	h := NewHub(opts...)
	f.Seed(h)
	return h
}
