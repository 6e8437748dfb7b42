package facade

import (
	"context"
	"time"

	"github.com/google/uuid"

	"knowledgefabric/events"
	"knowledgefabric/memory"
)

// Log persists and dispatches an event through the Event Pipeline. id
// and timestamp are assigned here so callers never need to know the
// Event shape's bookkeeping fields.
func (f *Facade) Log(ctx context.Context, eventType, source string, metadata map[string]any, related []events.NodeRef) error {
	return f.Events.Log(ctx, events.Event{
		ID: uuid.NewString(), Type: eventType, Timestamp: f.clock(), Source: source,
		Metadata: metadata, Related: related,
	})
}

// Subscribe registers handler for every event type matching pattern.
func (f *Facade) Subscribe(pattern string, handler events.Handler) {
	f.Events.RegisterHandler(pattern, handler)
}

// RememberContext stores a new Memory, the write half of the memory
// surface.
func (f *Facade) RememberContext(ctx context.Context, content string, memCtx map[string]string, typ memory.MemoryType, importance *float64) (string, error) {
	return f.Memory.Store(ctx, content, memCtx, typ, importance)
}

// RecallByContext is the read half of the memory surface for
// context-scored retrieval.
func (f *Facade) RecallByContext(ctx context.Context, query memory.ContextQuery, limit int) ([]memory.Memory, error) {
	return f.Memory.RecallByContext(ctx, query, limit)
}

// RecallByType is the read half of the memory surface for type-scoped,
// most-recent-first retrieval.
func (f *Facade) RecallByType(ctx context.Context, typ memory.MemoryType, limit int) ([]memory.Memory, error) {
	return f.Memory.RecallByType(ctx, typ, limit)
}

// RecallMemory returns a single Memory by id.
func (f *Facade) RecallMemory(ctx context.Context, id string) (memory.Memory, bool, error) {
	return f.Memory.RecallByID(ctx, id)
}

// AssociateMemories creates or strengthens a RELATED_TO edge between two
// memories.
func (f *Facade) AssociateMemories(ctx context.Context, memoryIDA, memoryIDB, relation string, strength float64) error {
	return f.Memory.Associate(ctx, memoryIDA, memoryIDB, relation, strength)
}

// MemoryImportanceNow reports a memory's decayed importance as of now,
// without persisting it.
func (f *Facade) MemoryImportanceNow(ctx context.Context, id string, now time.Time) (float64, error) {
	return f.Memory.Decay(ctx, id, now)
}

// CheckReadAccess reports whether the registered access policies allow
// the requesting agent to read a node of the given label and
// properties.
func (f *Facade) CheckReadAccess(label string, props, agent map[string]any) (bool, error) {
	return f.DKM.CheckAccess(label, props, agent)
}
