package events

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgefabric/fabricerr"
)

type fakeStore struct {
	mu     sync.Mutex
	events []Event
	failOn string
}

func (s *fakeStore) Persist(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && e.Type == s.failOn {
		return fabricerr.New(fabricerr.ValidationError, "rejected")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *fakeStore) hasType(eventType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

func newEvent(eventType string) Event {
	return Event{ID: uuid.NewString(), Type: eventType, Timestamp: time.Now(), Source: "test"}
}

func TestLogDispatchesToMatchingHandler(t *testing.T) {
	store := &fakeStore{}
	p := NewProcessor(Config{QueueCapacity: 8, WorkerCount: 2, BackpressureWait: 50 * time.Millisecond}, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(true)

	received := make(chan Event, 1)
	p.RegisterHandler("agent.*", func(e Event) error {
		received <- e
		return nil
	})

	require.NoError(t, p.Log(context.Background(), newEvent("agent.action")))

	select {
	case e := <-received:
		assert.Equal(t, "agent.action", e.Type)
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestFilterDiscardsEvent(t *testing.T) {
	store := &fakeStore{}
	p := NewProcessor(Config{QueueCapacity: 8, WorkerCount: 1, BackpressureWait: 50 * time.Millisecond}, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(true)

	p.RegisterFilter("agent.*", func(Event) bool { return false })

	called := make(chan struct{}, 1)
	p.RegisterHandler("agent.*", func(Event) error { called <- struct{}{}; return nil })

	require.NoError(t, p.Log(context.Background(), newEvent("agent.action")))

	select {
	case <-called:
		t.Fatal("handler invoked despite filter veto")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerErrorDoesNotStopOtherHandlers(t *testing.T) {
	store := &fakeStore{}
	p := NewProcessor(Config{QueueCapacity: 8, WorkerCount: 1, BackpressureWait: 50 * time.Millisecond}, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(true)

	second := make(chan struct{}, 1)
	p.RegisterHandler("agent.*", func(Event) error { return assert.AnError })
	p.RegisterHandler("agent.*", func(Event) error { second <- struct{}{}; return nil })

	require.NoError(t, p.Log(context.Background(), newEvent("agent.action")))

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second handler never invoked")
	}
}

func TestLogRejectsAfterStop(t *testing.T) {
	store := &fakeStore{}
	p := NewProcessor(Config{QueueCapacity: 8, WorkerCount: 1, BackpressureWait: 50 * time.Millisecond}, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Stop(false)

	err := p.Log(context.Background(), newEvent("agent.action"))
	assert.True(t, fabricerr.Is(err, fabricerr.ProcessorStopped))
}

func TestBackpressureExceeded(t *testing.T) {
	store := &fakeStore{}
	// Zero workers: nothing drains the queue, so it fills immediately.
	p := NewProcessor(Config{QueueCapacity: 1, WorkerCount: 0, BackpressureWait: 20 * time.Millisecond}, store, nil)

	require.NoError(t, p.Log(context.Background(), newEvent("agent.action")))

	err := p.Log(context.Background(), newEvent("agent.action"))
	assert.True(t, fabricerr.Is(err, fabricerr.BackpressureExceeded))
	assert.Equal(t, 1, store.count())
}

func TestSameSourceEventsDispatchInOrder(t *testing.T) {
	store := &fakeStore{}
	p := NewProcessor(Config{QueueCapacity: 64, WorkerCount: 4, BackpressureWait: 500 * time.Millisecond}, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var mu sync.Mutex
	var got []int
	p.RegisterHandler("seq.*", func(e Event) error {
		mu.Lock()
		got = append(got, e.Metadata["n"].(int))
		mu.Unlock()
		return nil
	})

	for i := 0; i < 20; i++ {
		e := newEvent("seq.tick")
		e.Metadata = map[string]any{"n": i}
		require.NoError(t, p.Log(context.Background(), e))
	}
	p.Stop(true)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 20)
	assert.True(t, sort.IntsAreSorted(got), "events from one source must dispatch in emission order")
}

func TestCorrelationRuleEmitsOnCompletion(t *testing.T) {
	store := &fakeStore{}
	p := NewProcessor(Config{QueueCapacity: 8, WorkerCount: 2, BackpressureWait: 50 * time.Millisecond}, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(true)

	p.RegisterCorrelation(CorrelationRule{
		Name:   "task-succeeded",
		Types:  []string{"task.started", "task.completed"},
		Window: 5 * time.Minute,
		KeyFunc: func(e Event) string {
			taskID, _ := e.Metadata["task_id"].(string)
			return taskID
		},
		Emit: func(key string, matched map[string]Event) Event {
			return Event{
				ID: uuid.NewString(), Type: "task.succeeded", Timestamp: time.Now(), Source: "correlation",
				Related: []NodeRef{{Label: "Event", ID: matched["task.started"].ID}, {Label: "Event", ID: matched["task.completed"].ID}},
			}
		},
	})

	started := newEvent("task.started")
	started.Metadata = map[string]any{"task_id": "t1"}
	completed := newEvent("task.completed")
	completed.Metadata = map[string]any{"task_id": "t1"}

	require.NoError(t, p.Log(context.Background(), started))
	require.NoError(t, p.Log(context.Background(), completed))

	require.Eventually(t, func() bool {
		return store.hasType("task.succeeded")
	}, time.Second, 10*time.Millisecond)
}
