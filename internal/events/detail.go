package events

import (
	"fmt"
	"strconv"
	"time"
)

// Detail is the type-specific part of an event. The set of implementations
// is closed: PortState, BGP, BFD, Reachability and Alarm.
type Detail interface {
	Type() Type
	IsDown() bool
	// OpState is the short operational state label shown in the table.
	OpState() string
	// PortLabel names the port, peer or address the event concerns.
	PortLabel() string
	Description(lastEvent string) string
	Attributes() []Attribute

	sealed()
}

// PortOperState is the operational state of an interface.
type PortOperState string

const (
	PortUp             PortOperState = "up"
	PortDown           PortOperState = "down"
	PortLowerLayerDown PortOperState = "lowerLayerDown"
	PortAdminDown      PortOperState = "adminDown"
	PortDormant        PortOperState = "dormant"
	PortNotPresent     PortOperState = "notPresent"
	PortTesting        PortOperState = "testing"
	PortUnknown        PortOperState = "unknown"
)

// BFDState is the state of a BFD session.
type BFDState string

const (
	BFDUp        BFDState = "up"
	BFDDown      BFDState = "down"
	BFDAdminDown BFDState = "adminDown"
	BFDInit      BFDState = "init"
)

// ReachabilityState is the reachability of a router.
type ReachabilityState string

const (
	Reachable  ReachabilityState = "reachable"
	NoResponse ReachabilityState = "no-response"
)

// PortState describes an interface state event.
type PortState struct {
	Port      string
	IfIndex   int
	OperState PortOperState
	Descr     string
	Flaps     int
	FlapState string
	AccDown   time.Duration
	LastTrans time.Time
}

func (PortState) Type() Type { return TypePortState }

func (p PortState) IsDown() bool {
	return p.OperState == PortDown || p.OperState == PortLowerLayerDown
}

func (p PortState) OpState() string { return "PORT " + truncate(string(p.OperState), 5) }

func (p PortState) PortLabel() string { return p.Port }

func (p PortState) Description(string) string { return p.Descr }

// Downtime is the accumulated downtime plus, while the port is still down,
// the time elapsed since the last transition.
func (p PortState) Downtime(now time.Time) time.Duration {
	d := p.AccDown
	if p.IsDown() && !p.LastTrans.IsZero() && now.After(p.LastTrans) {
		d += now.Sub(p.LastTrans)
	}
	if d < 0 {
		return 0
	}
	return d
}

func (p PortState) Attributes() []Attribute {
	return []Attribute{
		{Name: "port", Value: p.Port},
		{Name: "ifindex", Value: strconv.Itoa(p.IfIndex)},
		{Name: "portstate", Value: string(p.OperState)},
		{Name: "descr", Value: p.Descr},
		{Name: "flaps", Value: strconv.Itoa(p.Flaps)},
		{Name: "flapstate", Value: p.FlapState},
		{Name: "ac_down", Value: p.AccDown.String()},
		{Name: "lasttrans", Value: formatTimestamp(p.LastTrans)},
	}
}

func (PortState) sealed() {}

// BGP describes a BGP peering event.
type BGP struct {
	RemoteAddr string
	RemoteAS   int64
	PeerUptime time.Duration
	OperState  string
	AdminState string
}

func (BGP) Type() Type { return TypeBGP }

func (b BGP) IsDown() bool { return b.OperState == "down" }

func (b BGP) OpState() string { return "BGP  " + truncate(b.OperState, 5) }

func (b BGP) PortLabel() string { return fmt.Sprintf("AS%d", b.RemoteAS) }

func (b BGP) Description(lastEvent string) string {
	return fmt.Sprintf("%s %s", b.RemoteAddr, lastEvent)
}

func (b BGP) Attributes() []Attribute {
	return []Attribute{
		{Name: "remote-addr", Value: b.RemoteAddr},
		{Name: "remote-as", Value: strconv.FormatInt(b.RemoteAS, 10)},
		{Name: "peer-uptime", Value: b.PeerUptime.String()},
		{Name: "bgpos", Value: b.OperState},
		{Name: "bgpas", Value: b.AdminState},
	}
}

func (BGP) sealed() {}

// BFD describes a BFD session event.
type BFD struct {
	State     BFDState
	Index     int
	Discr     int64
	Addr      string
	NeighRDNS string
}

func (BFD) Type() Type { return TypeBFD }

func (b BFD) IsDown() bool { return b.State == BFDDown }

func (b BFD) OpState() string { return "BFD  " + truncate(string(b.State), 5) }

func (b BFD) PortLabel() string {
	if b.Addr != "" {
		return b.Addr
	}
	return fmt.Sprintf("ix %d", b.Index)
}

func (b BFD) Description(lastEvent string) string {
	return fmt.Sprintf("%s, %s", b.NeighRDNS, lastEvent)
}

func (b BFD) Attributes() []Attribute {
	return []Attribute{
		{Name: "bfdstate", Value: string(b.State)},
		{Name: "bfdix", Value: strconv.Itoa(b.Index)},
		{Name: "bfddiscr", Value: strconv.FormatInt(b.Discr, 10)},
		{Name: "bfdaddr", Value: b.Addr},
		{Name: "neigh-rdns", Value: b.NeighRDNS},
	}
}

func (BFD) sealed() {}

// Reachability describes a router reachability event.
type Reachability struct {
	State ReachabilityState
}

func (Reachability) Type() Type { return TypeReachability }

func (r Reachability) IsDown() bool { return r.State == NoResponse }

func (r Reachability) OpState() string { return string(r.State) }

func (Reachability) PortLabel() string { return "" }

func (Reachability) Description(string) string { return "" }

func (r Reachability) Attributes() []Attribute {
	return []Attribute{{Name: "reachability", Value: string(r.State)}}
}

func (Reachability) sealed() {}

// Alarm describes a chassis alarm event.
type Alarm struct {
	AlarmType string
	Count     int
}

func (Alarm) Type() Type { return TypeAlarm }

func (a Alarm) IsDown() bool { return a.Count > 0 }

func (a Alarm) OpState() string { return "ALRM " + a.AlarmType }

func (Alarm) PortLabel() string { return "" }

func (Alarm) Description(lastEvent string) string { return lastEvent }

func (a Alarm) Attributes() []Attribute {
	return []Attribute{
		{Name: "alarm-type", Value: a.AlarmType},
		{Name: "alarm-count", Value: strconv.Itoa(a.Count)},
	}
}

func (Alarm) sealed() {}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
