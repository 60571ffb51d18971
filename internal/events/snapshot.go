package events

import "slices"

// Snapshot is an insertion-ordered mapping of event id to Event.
// The zero value is an empty snapshot ready for use.
type Snapshot struct {
	ids  []int64
	byID map[int64]Event
}

// NewSnapshot builds a snapshot preserving the order of evs. A later
// duplicate id replaces the earlier value but keeps the earlier position.
func NewSnapshot(evs []Event) *Snapshot {
	s := &Snapshot{
		ids:  make([]int64, 0, len(evs)),
		byID: make(map[int64]Event, len(evs)),
	}
	for _, e := range evs {
		s.Put(e)
	}
	return s
}

// Len returns the number of events.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns a copy of the ids in iteration order.
func (s *Snapshot) IDs() []int64 {
	if s == nil {
		return nil
	}
	return slices.Clone(s.ids)
}

// Get returns the event with the given id.
func (s *Snapshot) Get(id int64) (Event, bool) {
	if s == nil {
		return Event{}, false
	}
	e, ok := s.byID[id]
	return e, ok
}

// Has reports whether id is present.
func (s *Snapshot) Has(id int64) bool {
	_, ok := s.Get(id)
	return ok
}

// Events returns the events in iteration order.
func (s *Snapshot) Events() []Event {
	if s == nil {
		return nil
	}
	out := make([]Event, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.byID[id])
	}
	return out
}

// Put inserts e at the end, or replaces it in place when already present.
func (s *Snapshot) Put(e Event) {
	s.init()
	if _, ok := s.byID[e.ID]; !ok {
		s.ids = append(s.ids, e.ID)
	}
	s.byID[e.ID] = e
}

// Prepend inserts e at the front, or replaces it in place when already present.
func (s *Snapshot) Prepend(e Event) {
	s.init()
	if _, ok := s.byID[e.ID]; !ok {
		s.ids = slices.Insert(s.ids, 0, e.ID)
	}
	s.byID[e.ID] = e
}

// Delete removes id and reports whether it was present.
func (s *Snapshot) Delete(id int64) bool {
	if s == nil {
		return false
	}
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	s.ids = slices.DeleteFunc(s.ids, func(v int64) bool { return v == id })
	return true
}

func (s *Snapshot) init() {
	if s.byID == nil {
		s.byID = make(map[int64]Event)
	}
}
