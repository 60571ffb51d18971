package events

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// SortStrategy names one of the fixed event orderings.
type SortStrategy string

const (
	SortRaw       SortStrategy = "raw"
	SortAge       SortStrategy = "age"
	SortAgeRev    SortStrategy = "age-rev"
	SortUpd       SortStrategy = "upd"
	SortUpdRev    SortStrategy = "upd-rev"
	SortDown      SortStrategy = "down"
	SortDownRev   SortStrategy = "down-rev"
	SortLastTrans SortStrategy = "lasttrans"
	SortSeverity  SortStrategy = "severity"

	// SortDefault is the strategy that leaves the source order untouched.
	SortDefault = SortRaw
)

// ErrInvalidSort is returned for unknown sort strategy names.
var ErrInvalidSort = errors.New("invalid sort strategy")

// SortOption is a strategy with its menu label.
type SortOption struct {
	Strategy SortStrategy
	Label    string
}

var sortOptions = []SortOption{
	{Strategy: SortRaw, Label: "Unsorted"},
	{Strategy: SortLastTrans, Label: "Last transition, ignored last"},
	{Strategy: SortSeverity, Label: "Severity"},
	{Strategy: SortAge, Label: "Age, newest first"},
	{Strategy: SortAgeRev, Label: "Age, oldest first"},
	{Strategy: SortUpd, Label: "Updated, oldest first"},
	{Strategy: SortUpdRev, Label: "Updated, newest first"},
	{Strategy: SortDown, Label: "Downtime, longest first"},
	{Strategy: SortDownRev, Label: "Downtime, shortest first"},
}

// SortOptions returns every strategy in menu order.
func SortOptions() []SortOption {
	return slices.Clone(sortOptions)
}

// ParseSortStrategy validates a strategy name. Matching is case-insensitive
// and accepts "default" for SortRaw.
func ParseSortStrategy(raw string) (SortStrategy, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "default" {
		return SortDefault, nil
	}
	for _, opt := range sortOptions {
		if string(opt.Strategy) == name {
			return opt.Strategy, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSort, raw)
}

// Label returns the menu label of s.
func (s SortStrategy) Label() string {
	for _, opt := range sortOptions {
		if opt.Strategy == s {
			return opt.Label
		}
	}
	return string(s)
}

// Sort returns a new snapshot ordered by strategy. The input is not
// modified. Ties keep their order in snap. Downtime is measured at now.
func Sort(snap *Snapshot, strategy SortStrategy, now time.Time) *Snapshot {
	evs := snap.Events()

	switch strategy {
	case SortAge:
		slices.SortStableFunc(evs, func(a, b Event) int { return b.Opened.Compare(a.Opened) })
	case SortAgeRev:
		slices.SortStableFunc(evs, func(a, b Event) int { return a.Opened.Compare(b.Opened) })
	case SortUpd:
		slices.SortStableFunc(evs, func(a, b Event) int { return a.Updated.Compare(b.Updated) })
	case SortUpdRev:
		slices.SortStableFunc(evs, func(a, b Event) int { return b.Updated.Compare(a.Updated) })
	case SortDown, SortDownRev:
		down := make(map[int64]time.Duration, len(evs))
		for _, e := range evs {
			down[e.ID] = e.Downtime(now)
		}
		if strategy == SortDown {
			slices.SortStableFunc(evs, func(a, b Event) int { return cmp.Compare(down[b.ID], down[a.ID]) })
		} else {
			slices.SortStableFunc(evs, func(a, b Event) int { return cmp.Compare(down[a.ID], down[b.ID]) })
		}
	case SortLastTrans:
		slices.SortStableFunc(evs, func(a, b Event) int {
			if c := cmp.Compare(notIgnored(b), notIgnored(a)); c != 0 {
				return c
			}
			return b.Updated.Compare(a.Updated)
		})
	case SortSeverity:
		// Priority and colour are derived independently, so equal
		// priorities do not necessarily form contiguous colour blocks.
		slices.SortStableFunc(evs, func(a, b Event) int {
			if c := cmp.Compare(Priority(a), Priority(b)); c != 0 {
				return c
			}
			return cmp.Compare(a.Type(), b.Type())
		})
	}

	return NewSnapshot(evs)
}

func notIgnored(e Event) int {
	if e.AdmState == AdmIgnored {
		return 0
	}
	return 1
}
