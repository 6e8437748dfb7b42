package synchronizer

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"knowledgefabric/dkm"
	"knowledgefabric/events"
	"knowledgefabric/fabricerr"
	"knowledgefabric/fabriclog"
)

// Config sizes the Synchronizer, mirroring fabricconfig.SyncConfig.
type Config struct {
	QueueCapacity    int
	WorkerCount      int
	BackpressureWait time.Duration
}

// localLock is the default in-process CoalescingLock, backed by a map
// guarded by a mutex rather than sync.Map since ReleaseAndCheckDirty
// needs an atomic read-clear-and-report.
type localLock struct {
	mu      sync.Mutex
	running map[string]bool
	dirty   map[string]bool
}

func newLocalLock() *localLock {
	return &localLock{running: map[string]bool{}, dirty: map[string]bool{}}
}

func (l *localLock) TryAcquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running[key] {
		l.dirty[key] = true
		return false, nil
	}
	l.running[key] = true
	return true, nil
}

func (l *localLock) ReleaseAndCheckDirty(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dirty := l.dirty[key]
	delete(l.dirty, key)
	delete(l.running, key)
	return dirty, nil
}

// jobHeap orders Jobs by (priority desc, enqueue time asc).
type jobHeap []Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Enqueued.Before(h[j].Enqueued)
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)   { *h = append(*h, x.(Job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Synchronizer turns dkm.SynchronizationRules into scheduled work.
type Synchronizer struct {
	cfg    Config
	dkm    *dkm.DKM
	lock   CoalescingLock
	hist   History
	events dkm.EventLogger
	log    *fabriclog.Logger

	cron *cron.Cron

	mu       sync.Mutex
	heap     jobHeap
	notify   chan struct{}
	paused   map[string]bool
	statuses map[string]Status
	cronIDs  map[string]cron.EntryID
	running  map[string]runningJob

	stopped bool
	drain   bool
	abort   chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Synchronizer at construction.
type Option func(*Synchronizer)

// WithCoalescingLock overrides the default in-process lock, e.g. with
// a Redis-backed one from lock.go for multi-process deployments.
func WithCoalescingLock(l CoalescingLock) Option {
	return func(s *Synchronizer) { s.lock = l }
}

// WithHistory attaches a durable run-history sink.
func WithHistory(h History) Option {
	return func(s *Synchronizer) { s.hist = h }
}

// WithEventLogger attaches the sink for synchronization.failed and
// synchronization.cancelled events.
func WithEventLogger(l dkm.EventLogger) Option {
	return func(s *Synchronizer) { s.events = l }
}

// New builds a Synchronizer. Call Start to launch its worker pool and
// cron scheduler.
func New(cfg Config, d *dkm.DKM, log *fabriclog.Logger, opts ...Option) *Synchronizer {
	if log == nil {
		log = fabriclog.NewNop()
	}
	s := &Synchronizer{
		cfg: cfg, dkm: d, lock: newLocalLock(),
		log:      log.WithField("component", "synchronizer"),
		cron:     cron.New(),
		notify:   make(chan struct{}, 1),
		paused:   map[string]bool{},
		statuses: map[string]Status{},
		cronIDs:  map[string]cron.EntryID{},
		running:  map[string]runningJob{},
		abort:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterForCadence schedules rule according to its Cadence: a
// cron entry for CadenceScheduled, an event subscription for
// CadenceOnEvent via sub, or nothing for CadenceManual (only
// TriggerNow applies).
func (s *Synchronizer) RegisterForCadence(rule dkm.SynchronizationRule, sub EventSubscriber) error {
	switch rule.Cadence.Kind {
	case dkm.CadenceScheduled:
		spec := fmt.Sprintf("@every %s", rule.Cadence.Period.String())
		id, err := s.cron.AddFunc(spec, func() {
			if _, ok := s.enqueue(rule, "scheduled"); !ok {
				s.log.WithField("rule", rule.Name).Warn("scheduled sync run dropped")
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling rule %q: %w", rule.Name, err)
		}
		s.mu.Lock()
		s.cronIDs[rule.Name] = id
		s.mu.Unlock()
	case dkm.CadenceOnEvent:
		if sub == nil {
			return fmt.Errorf("rule %q has cadence=on_event but no EventSubscriber was provided", rule.Name)
		}
		sub.RegisterHandler(rule.Cadence.EventPattern, func(events.Event) error {
			if _, ok := s.enqueue(rule, "event"); !ok {
				return fabricerr.New(fabricerr.BackpressureExceeded, "sync job queue is full")
			}
			return nil
		})
	case dkm.CadenceManual:
		// TriggerNow is the only way this rule runs.
	}
	return nil
}

// Start launches the worker pool and the cron scheduler.
func (s *Synchronizer) Start(ctx context.Context) {
	s.cron.Start()
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.work(ctx)
	}
}

// runningJob tracks one in-flight run so Cancel can reach it.
type runningJob struct {
	rule   string
	cancel context.CancelFunc
}

// TriggerNow enqueues an immediate manual run of rule, returning the
// job ID for use with Cancel. It fails with BackpressureExceeded when
// the job was not accepted: the queue is at capacity, the rule is
// paused, or the Synchronizer is draining.
func (s *Synchronizer) TriggerNow(rule dkm.SynchronizationRule) (string, error) {
	jobID, ok := s.enqueue(rule, "manual")
	if !ok {
		return "", fabricerr.New(fabricerr.BackpressureExceeded,
			fmt.Sprintf("sync job for rule %q not accepted (queue full, paused, or draining)", rule.Name))
	}
	return jobID, nil
}

// enqueue reports not-accepted when the Synchronizer is draining, the
// rule is paused, or the queue stayed at capacity past
// cfg.BackpressureWait.
func (s *Synchronizer) enqueue(rule dkm.SynchronizationRule, triggeredBy string) (string, bool) {
	deadline := time.Now().Add(s.cfg.BackpressureWait)
	for {
		s.mu.Lock()
		if s.drain || s.paused[rule.Name] {
			s.mu.Unlock()
			return "", false
		}
		if s.cfg.QueueCapacity <= 0 || len(s.heap) < s.cfg.QueueCapacity {
			jobID := uuid.NewString()
			heap.Push(&s.heap, Job{
				ID: jobID, Rule: rule, Priority: rule.Priority,
				Enqueued: time.Now(), TriggeredBy: triggeredBy,
			})
			s.mu.Unlock()

			select {
			case s.notify <- struct{}{}:
			default:
			}
			return jobID, true
		}
		s.mu.Unlock()

		if s.cfg.BackpressureWait <= 0 || !time.Now().Before(deadline) {
			return "", false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Pause stops new runs of rule from being accepted (queued jobs for it
// are skipped, not removed, to keep the heap logic simple).
func (s *Synchronizer) Pause(ruleName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[ruleName] = true
	st := s.statuses[ruleName]
	st.Rule = ruleName
	st.Paused = true
	s.statuses[ruleName] = st
}

// Resume re-enables rule for new runs.
func (s *Synchronizer) Resume(ruleName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, ruleName)
	st := s.statuses[ruleName]
	st.Paused = false
	s.statuses[ruleName] = st
}

// Cancel cancels a job by ID and emits a synchronization.cancelled
// event for it. A still-queued job is removed before it ever runs; an
// in-flight job is marked for termination, which the run honors at its
// next candidate boundary while keeping the progress made so far. A
// jobID that is neither queued nor running (already finished, or
// unknown) is a no-op.
func (s *Synchronizer) Cancel(ctx context.Context, jobID string) {
	s.mu.Lock()
	var rule string
	found := false
	for i, j := range s.heap {
		if j.ID == jobID {
			removed := heap.Remove(&s.heap, i).(Job)
			rule = removed.Rule.Name
			found = true
			break
		}
	}
	if !found {
		if rj, ok := s.running[jobID]; ok {
			rj.cancel()
			rule = rj.rule
			found = true
		}
	}
	s.mu.Unlock()

	if found && s.events != nil {
		_ = s.events.Log(ctx, "synchronization.cancelled", "synchronizer", map[string]any{
			"job_id": jobID, "rule": rule,
		})
	}
}

// Status returns the last-known status for ruleName.
func (s *Synchronizer) Status(ruleName string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[ruleName]
	return st, ok
}

// Drain stops accepting new work and waits for in-flight runs to
// finish.
func (s *Synchronizer) Drain() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.drain = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	close(s.abort)
	s.wg.Wait()
	s.stopped = true
}

func (s *Synchronizer) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.abort:
			return
		case <-s.notify:
		}

		for {
			job, ok := s.pop()
			if !ok {
				break
			}
			s.run(ctx, job)
		}
	}
}

func (s *Synchronizer) pop() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return Job{}, false
	}
	return heap.Pop(&s.heap).(Job), true
}

func (s *Synchronizer) run(ctx context.Context, job Job) {
	s.mu.Lock()
	paused := s.paused[job.Rule.Name]
	s.mu.Unlock()
	if paused {
		// Queued before Pause; skipped rather than removed.
		return
	}

	key := job.Rule.Name + "/" + job.Rule.Source + "/" + job.Rule.Target
	acquired, err := s.lock.TryAcquire(ctx, key)
	if err != nil {
		s.log.WithError(err).Warn("coalescing lock acquire failed")
		return
	}
	if !acquired {
		// A run is already in progress; it will re-run on release
		// since ReleaseAndCheckDirty will see this attempt.
		return
	}

	// Each run gets its own cancelable context, registered so Cancel
	// can reach it; the DKM checks it at every candidate boundary.
	jobCtx, cancelJob := context.WithCancel(ctx)
	s.mu.Lock()
	s.running[job.ID] = runningJob{rule: job.Rule.Name, cancel: cancelJob}
	s.mu.Unlock()

	started := time.Now()
	result, runErr := s.dkm.SynchronizeRule(jobCtx, job.Rule.Name)

	s.mu.Lock()
	delete(s.running, job.ID)
	s.mu.Unlock()
	cancelJob()

	status := Status{Rule: job.Rule.Name, LastRunStartedAt: started, LastRunDuration: time.Since(started)}
	if result != nil {
		status.ItemsConsidered = result.ItemsConsidered
		status.ItemsApplied = result.ItemsApplied
		status.ItemsVetoed = result.ItemsVetoed
		status.ItemsDeferred = result.ItemsDeferred
	}
	switch {
	case runErr == nil && status.ItemsDeferred == 0:
		status.LastRunResult = RunOK
	case runErr == nil:
		status.LastRunResult = RunPartial
	case fabricerr.Is(runErr, fabricerr.Cancelled):
		// Progress up to the cancellation point is kept; the
		// synchronization.cancelled event was emitted by Cancel.
		status.LastRunResult = RunPartial
		status.LastError = runErr.Error()
	default:
		status.LastRunResult = RunFailed
		status.LastError = runErr.Error()
		if s.events != nil {
			_ = s.events.Log(ctx, "synchronization.failed", "synchronizer", map[string]any{
				"rule": job.Rule.Name, "error": runErr.Error(),
			})
		}
	}

	s.mu.Lock()
	s.statuses[job.Rule.Name] = status
	s.mu.Unlock()

	if s.hist != nil {
		if err := s.hist.RecordRun(ctx, status); err != nil {
			s.log.WithError(err).Warn("failed to record run history")
		}
	}

	dirty, err := s.lock.ReleaseAndCheckDirty(ctx, key)
	if err != nil {
		s.log.WithError(err).Warn("coalescing lock release failed")
		return
	}
	if dirty {
		if _, ok := s.enqueue(job.Rule, "coalesced-followup"); !ok {
			s.log.WithField("rule", job.Rule.Name).Warn("coalesced follow-up run dropped")
		}
	}
}
