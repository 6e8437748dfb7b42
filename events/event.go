// Package events implements the Event Pipeline: a bounded dispatch
// queue, a fixed worker pool applying filters then handlers then
// correlation rules, and an ordering/backpressure discipline.
package events

import "time"

// NodeRef is an opaque reference to a graph node, used by Event.Related
// and by correlation rule templates instead of carrying a live handle
// that could form a cycle.
type NodeRef struct {
	Label string
	ID    string
}

// Event is an immutable record of a happening. Once constructed an
// Event is never mutated; handlers receive it by value.
type Event struct {
	ID        string
	Type      string
	Timestamp time.Time
	Source    string
	Metadata  map[string]any
	Related   []NodeRef
}

// Filter is a predicate keyed by event-type glob; an event is discarded
// from further dispatch (not from storage) when any matching filter
// returns false.
type Filter func(Event) bool

// Handler consumes a dispatched event. A returned error is caught,
// logged with event context, and does not stop dispatch to other
// handlers.
type Handler func(Event) error
