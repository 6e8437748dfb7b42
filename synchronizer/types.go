// Package synchronizer schedules dkm.SynchronizationRule runs: jobs are
// queued by priority and triggered on a scheduled tick (robfig/cron/v3),
// on event match, or on explicit TriggerNow, with
// at-most-one-concurrent-run-per-rule coalescing.
package synchronizer

import (
	"context"
	"time"

	"knowledgefabric/dkm"
	"knowledgefabric/events"
)

// RunResult classifies how a completed run ended.
type RunResult string

const (
	RunOK      RunResult = "ok"
	RunPartial RunResult = "partial"
	RunFailed  RunResult = "failed"
)

// Status is the per-rule status report.
type Status struct {
	Rule              string
	LastRunStartedAt  time.Time
	LastRunDuration   time.Duration
	LastRunResult     RunResult
	ItemsConsidered   int
	ItemsApplied      int
	ItemsVetoed       int
	ItemsDeferred     int
	LastError         string
	Paused            bool
}

// Job is one unit of scheduled work: run rule's Synchronize.
type Job struct {
	ID       string
	Rule     dkm.SynchronizationRule
	Priority int
	Enqueued time.Time
	// TriggeredBy records why this job was enqueued, for logging only:
	// "scheduled", "event", "manual", or "coalesced-followup".
	TriggeredBy string
}

// CoalescingLock guarantees at most one concurrent run per (rule,
// source, target) triple. TryAcquire returns false (and marks the slot
// dirty) when a run is already in progress; ReleaseAndCheckDirty
// reports whether a follow-up run must execute because a coalesced
// attempt occurred while the lock was held.
//
// synchronizer.go's default implementation is in-process; lock.go's
// Redis-backed implementation additionally coordinates across separate
// facade processes.
type CoalescingLock interface {
	TryAcquire(ctx context.Context, key string) (acquired bool, err error)
	ReleaseAndCheckDirty(ctx context.Context, key string) (dirty bool, err error)
}

// History records completed runs durably. history.go's GORM-backed
// implementation is optional; a nil History is a valid no-op for
// deployments that don't need a durable audit trail.
type History interface {
	RecordRun(ctx context.Context, status Status) error
}

// EventSubscriber is the slice of events.Processor the Synchronizer
// needs to drive cadence=on_event rules, kept as an interface rather
// than depending on *events.Processor directly so tests can supply a
// fake.
type EventSubscriber interface {
	RegisterHandler(pattern string, handler events.Handler)
}
