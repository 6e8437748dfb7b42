package events

import (
	"sync"
	"time"
)

// CorrelationRule names a set of event types that, once all observed
// within a sliding window of Window for the same KeyFunc value, produce
// one emitted event via Emit. A typical rule: when task.started and
// task.completed with matching task_id occur within 5 minutes, emit
// task.succeeded.
type CorrelationRule struct {
	Name    string
	Types   []string
	Window  time.Duration
	KeyFunc func(Event) string
	Emit    func(key string, matched map[string]Event) Event
}

func (r CorrelationRule) wants(eventType string) bool {
	for _, t := range r.Types {
		if t == eventType {
			return true
		}
	}
	return false
}

type observation struct {
	events map[string]Event
}

// correlationTracker holds the in-memory, per-rule bookkeeping of
// partially-matched correlation keys. Correlations lost across a
// process restart are not recovered.
type correlationTracker struct {
	rule CorrelationRule
	mu   sync.Mutex
	seen map[string]*observation
}

func newCorrelationTracker(rule CorrelationRule) *correlationTracker {
	return &correlationTracker{rule: rule, seen: map[string]*observation{}}
}

// observe records e against its correlation key and returns the emitted
// event and true if this observation completed the rule's type set
// within the window. On completion the key's bookkeeping is cleared so
// the same combination can be matched again for a reused key.
func (c *correlationTracker) observe(e Event) (Event, bool) {
	if !c.rule.wants(e.Type) {
		return Event{}, false
	}
	key := c.rule.KeyFunc(e)

	c.mu.Lock()
	defer c.mu.Unlock()

	obs, ok := c.seen[key]
	if !ok {
		obs = &observation{events: map[string]Event{}}
		c.seen[key] = obs
	}
	// Slide the window: drop earlier observations that lie more than
	// Window before this one.
	for t, prev := range obs.events {
		if e.Timestamp.Sub(prev.Timestamp) > c.rule.Window {
			delete(obs.events, t)
		}
	}
	obs.events[e.Type] = e

	if len(obs.events) < len(c.rule.Types) {
		return Event{}, false
	}
	for _, t := range c.rule.Types {
		if _, present := obs.events[t]; !present {
			return Event{}, false
		}
	}

	matched := obs.events
	delete(c.seen, key)
	return c.rule.Emit(key, matched), true
}
