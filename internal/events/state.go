package events

import (
	"errors"
	"fmt"
	"strings"
)

// AdmState is the operator-controlled lifecycle phase of an event.
type AdmState string

const (
	AdmOpen        AdmState = "open"
	AdmWorking     AdmState = "working"
	AdmWaiting     AdmState = "waiting"
	AdmConfirmWait AdmState = "confirm-wait"
	AdmIgnored     AdmState = "ignored"
	AdmClosed      AdmState = "closed"
	AdmUnknown     AdmState = "unknown"
)

// ErrInvalidAdmState is returned when a requested admin state is not one of
// the settable states.
var ErrInvalidAdmState = errors.New("invalid admin state")

// AdmStates lists the states an operator may set, in menu order.
var AdmStates = []AdmState{AdmOpen, AdmWorking, AdmWaiting, AdmConfirmWait, AdmIgnored, AdmClosed}

// ParseAdmState strictly parses user input into an AdmState.
func ParseAdmState(raw string) (AdmState, error) {
	s := AdmState(strings.ToLower(strings.TrimSpace(raw)))
	if s.Known() {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAdmState, raw)
}

// NormalizeAdmState maps any value reported by the event source onto an
// AdmState without failing; unrecognised values become AdmUnknown.
func NormalizeAdmState(raw string) AdmState {
	s := AdmState(strings.ToLower(strings.TrimSpace(raw)))
	if s.Known() {
		return s
	}
	return AdmUnknown
}

// Known reports whether s is one of the settable states.
func (s AdmState) Known() bool {
	switch s {
	case AdmOpen, AdmWorking, AdmWaiting, AdmConfirmWait, AdmIgnored, AdmClosed:
		return true
	default:
		return false
	}
}

// EventColor is the display colour of an event row.
type EventColor string

const (
	ColorRed     EventColor = "red"
	ColorBlue    EventColor = "cyan"
	ColorGreen   EventColor = "green"
	ColorYellow  EventColor = "yellow"
	ColorDefault EventColor = ""
)

// Color derives the display colour of e.
func Color(e Event) EventColor {
	switch e.AdmState {
	case AdmIgnored:
		return ColorBlue
	case AdmClosed:
		return ColorGreen
	}
	if !e.IsDown() {
		return ColorDefault
	}
	switch e.AdmState {
	case AdmOpen:
		return ColorRed
	case AdmWorking, AdmWaiting:
		return ColorYellow
	default:
		return ColorDefault
	}
}

// Priority ranks the severity of e from 0 (closed) to 4 (open and down).
// Rules are evaluated in order; the first match wins.
func Priority(e Event) int {
	switch e.AdmState {
	case AdmClosed:
		return 0
	case AdmIgnored:
		return 1
	case AdmConfirmWait:
		return 2
	case AdmOpen:
		if e.IsDown() {
			return 4
		}
		return 2
	case AdmWorking, AdmWaiting:
		return 3
	default:
		return 2
	}
}
