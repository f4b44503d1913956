// Package availability implements the periodic availability checker of
// spec.md §4.7: each tick, ping newly-seen workers for a resource-usage
// sample, and cancel the task set of any previously-seen worker whose
// records show no progress since the tick before.
//
// The "separate periodic thread... under worker_registry_lock" shape
// follows the teacher example's per-duty goroutine pattern (one long-lived
// goroutine, signaled to stop via context, reporting completion on a
// channel) generalized from a pub/sub tracking loop to a time.Ticker loop.
package availability

import (
	"context"
	"time"

	"github.com/banyan/banyan/internal/continuation"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/lock"
	"github.com/banyan/banyan/internal/logx"
	"github.com/banyan/banyan/internal/notifier"
	"github.com/banyan/banyan/internal/store"
)

// Checker runs the periodic availability sweep.
type Checker struct {
	log      *logx.Logger
	store    store.TaskStore
	locks    *lock.Registry
	cont     *continuation.Engine
	notify   *notifier.Notifier
	interval time.Duration

	lastSeen    map[string]struct{}
	lastTickAt  time.Time
}

// New builds a Checker.
func New(s store.TaskStore, locks *lock.Registry, cont *continuation.Engine, n *notifier.Notifier, interval time.Duration, log *logx.Logger) *Checker {
	return &Checker{
		log:      log,
		store:    s,
		locks:    locks,
		cont:     cont,
		notify:   n,
		interval: interval,
		lastSeen: make(map[string]struct{}),
	}
}

// Start runs the checker's tick loop until ctx is cancelled, then signals
// completion on completed — mirroring the teacher's
// Start(ctx, ..., completed chan<- struct{}) lifecycle method shape.
func (c *Checker) Start(ctx context.Context, completed chan<- struct{}) {
	defer func() { completed <- struct{}{} }()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tickTime := <-ticker.C:
			c.tick(ctx, tickTime)
		}
	}
}

func (c *Checker) tick(ctx context.Context, tickTime time.Time) {
	c.locks.Lock(lock.WorkerRegistryLock)
	defer c.locks.Unlock(lock.WorkerRegistryLock)

	workers, err := c.store.ListWorkers(ctx)
	if err != nil {
		c.log.Errorf("availability: list workers: %v", err)
		return
	}

	current := make(map[string]struct{}, len(workers))
	for _, w := range workers {
		current[w.WorkerID] = struct{}{}

		if _, seenBefore := c.lastSeen[w.WorkerID]; !seenBefore {
			c.requestUsage(w.WorkerID)
			continue
		}

		advanced, err := c.progressedSince(ctx, w.WorkerID, c.lastTickAt)
		if err != nil {
			c.log.Errorf("availability: check progress for worker %q: %v", w.WorkerID, err)
			continue
		}
		if advanced {
			c.requestUsage(w.WorkerID)
			continue
		}
		c.declareWorkerMissing(ctx, w.WorkerID)
	}

	c.lastSeen = current
	c.lastTickAt = tickTime
}

func (c *Checker) requestUsage(workerID string) {
	if err := c.notify.Notify(workerID, notifier.FrameResourceUsageRequest, [16]byte{}); err != nil {
		c.log.Warnf("availability: request usage from worker %q: %v", workerID, err)
	}
}

// progressedSince reports whether any execution record belonging to
// workerID has a last_update at or after since.
func (c *Checker) progressedSince(ctx context.Context, workerID string, since time.Time) (bool, error) {
	workers, err := c.recordsForWorker(ctx, workerID)
	if err != nil {
		return false, err
	}
	for _, r := range workers {
		if !r.Usage.LastUpdate.Before(since) {
			return true, nil
		}
	}
	return len(workers) == 0, nil // a worker with no attempts yet is never declared missing
}

func (c *Checker) recordsForWorker(ctx context.Context, workerID string) ([]*task.ExecutionRecord, error) {
	tasks, err := c.listAllTasks(ctx)
	if err != nil {
		return nil, err
	}
	var out []*task.ExecutionRecord
	for _, t := range tasks {
		if t.ExecutionDataID == "" {
			continue
		}
		rec, err := c.store.GetExecutionRecord(ctx, t.ExecutionDataID)
		if err != nil {
			continue
		}
		if rec.WorkerID == workerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Checker) listAllTasks(ctx context.Context) ([]*task.Task, error) {
	return c.store.ListTasks(ctx)
}

// declareWorkerMissing cancels every task currently assigned to workerID's
// latest execution attempt (subtree cancellation rules apply per spec.md
// §4.7) and deregisters its notifier connection.
func (c *Checker) declareWorkerMissing(ctx context.Context, workerID string) {
	tasks, err := c.listAllTasks(ctx)
	if err != nil {
		c.log.Errorf("availability: list tasks while declaring worker %q missing: %v", workerID, err)
		return
	}
	for _, t := range tasks {
		if t.ExecutionDataID == "" || (t.State != task.StatusRunning && t.State != task.StatusPendingCancellation) {
			continue
		}
		rec, err := c.store.GetExecutionRecord(ctx, t.ExecutionDataID)
		if err != nil || rec.WorkerID != workerID {
			continue
		}
		if err := c.cont.Cancel(ctx, t); err != nil {
			c.log.Errorf("availability: cancel task %q of missing worker %q: %v", t.ID, workerID, err)
		}
	}
	c.notify.Unregister(workerID)
	if err := c.store.DeleteWorker(ctx, workerID); err != nil {
		c.log.Warnf("availability: delete registered worker %q: %v", workerID, err)
	}
}
