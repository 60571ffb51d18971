package events

import (
	"errors"
	"testing"
)

func downDetails() map[Type]Detail {
	return map[Type]Detail{
		TypePortState:    PortState{Port: "xe-0/0/1", OperState: PortDown},
		TypeBGP:          BGP{RemoteAddr: "192.0.2.1", RemoteAS: 64500, OperState: "down"},
		TypeBFD:          BFD{State: BFDDown, Addr: "192.0.2.2"},
		TypeReachability: Reachability{State: NoResponse},
		TypeAlarm:        Alarm{AlarmType: "red", Count: 2},
	}
}

func upDetails() map[Type]Detail {
	return map[Type]Detail{
		TypePortState:    PortState{Port: "xe-0/0/1", OperState: PortUp},
		TypeBGP:          BGP{RemoteAddr: "192.0.2.1", RemoteAS: 64500, OperState: "established"},
		TypeBFD:          BFD{State: BFDUp, Addr: "192.0.2.2"},
		TypeReachability: Reachability{State: Reachable},
		TypeAlarm:        Alarm{AlarmType: "yellow", Count: 0},
	}
}

func TestIsDownPerType(t *testing.T) {
	t.Parallel()

	for typ, d := range downDetails() {
		if !(Event{Detail: d}).IsDown() {
			t.Fatalf("%s: IsDown() = false, want true", typ)
		}
	}
	for typ, d := range upDetails() {
		if (Event{Detail: d}).IsDown() {
			t.Fatalf("%s: IsDown() = true, want false", typ)
		}
	}
	if (Event{Detail: PortState{OperState: PortLowerLayerDown}}).IsDown() != true {
		t.Fatal("lowerLayerDown port should be down")
	}
	if (Event{}).IsDown() {
		t.Fatal("event without detail should never be down")
	}
}

func TestPriorityClosedAndOpenDownHoldForEveryType(t *testing.T) {
	t.Parallel()

	for typ, d := range downDetails() {
		if got := Priority(Event{AdmState: AdmClosed, Detail: d}); got != 0 {
			t.Fatalf("%s closed: Priority() = %d, want 0", typ, got)
		}
		if got := Priority(Event{AdmState: AdmOpen, Detail: d}); got != 4 {
			t.Fatalf("%s open+down: Priority() = %d, want 4", typ, got)
		}
	}
}

func TestPriorityDecisionList(t *testing.T) {
	t.Parallel()

	down := PortState{OperState: PortDown}
	up := PortState{OperState: PortUp}

	tests := []struct {
		name  string
		event Event
		want  int
	}{
		{name: "closed up", event: Event{AdmState: AdmClosed, Detail: up}, want: 0},
		{name: "ignored down", event: Event{AdmState: AdmIgnored, Detail: down}, want: 1},
		{name: "confirm wait down", event: Event{AdmState: AdmConfirmWait, Detail: down}, want: 2},
		{name: "empty state", event: Event{Detail: down}, want: 2},
		{name: "garbage state", event: Event{AdmState: AdmState("bogus"), Detail: down}, want: 2},
		{name: "unknown state", event: Event{AdmState: AdmUnknown, Detail: down}, want: 2},
		{name: "open up", event: Event{AdmState: AdmOpen, Detail: up}, want: 2},
		{name: "working up", event: Event{AdmState: AdmWorking, Detail: up}, want: 3},
		{name: "waiting down", event: Event{AdmState: AdmWaiting, Detail: down}, want: 3},
		{name: "open down", event: Event{AdmState: AdmOpen, Detail: down}, want: 4},
		{name: "open unknown type", event: Event{AdmState: AdmOpen}, want: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Priority(tc.event); got != tc.want {
				t.Fatalf("Priority() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestColor(t *testing.T) {
	t.Parallel()

	down := BFD{State: BFDDown}
	up := BFD{State: BFDUp}

	tests := []struct {
		name  string
		event Event
		want  EventColor
	}{
		{name: "ignored", event: Event{AdmState: AdmIgnored, Detail: down}, want: ColorBlue},
		{name: "closed", event: Event{AdmState: AdmClosed, Detail: down}, want: ColorGreen},
		{name: "open down", event: Event{AdmState: AdmOpen, Detail: down}, want: ColorRed},
		{name: "working down", event: Event{AdmState: AdmWorking, Detail: down}, want: ColorYellow},
		{name: "waiting down", event: Event{AdmState: AdmWaiting, Detail: down}, want: ColorYellow},
		{name: "confirm wait down", event: Event{AdmState: AdmConfirmWait, Detail: down}, want: ColorDefault},
		{name: "open up", event: Event{AdmState: AdmOpen, Detail: up}, want: ColorDefault},
		{name: "unknown type", event: Event{AdmState: AdmOpen}, want: ColorDefault},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Color(tc.event); got != tc.want {
				t.Fatalf("Color() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseAdmState(t *testing.T) {
	t.Parallel()

	if got, err := ParseAdmState(" Working "); err != nil || got != AdmWorking {
		t.Fatalf("ParseAdmState() = %q, %v; want %q", got, err, AdmWorking)
	}
	if got, err := ParseAdmState("confirm-wait"); err != nil || got != AdmConfirmWait {
		t.Fatalf("ParseAdmState() = %q, %v; want %q", got, err, AdmConfirmWait)
	}
	if _, err := ParseAdmState("unknown"); !errors.Is(err, ErrInvalidAdmState) {
		t.Fatalf("ParseAdmState(unknown) error = %v, want ErrInvalidAdmState", err)
	}
	if got := NormalizeAdmState("garbage"); got != AdmUnknown {
		t.Fatalf("NormalizeAdmState() = %q, want %q", got, AdmUnknown)
	}
}
