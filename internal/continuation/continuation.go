// Package continuation implements the continuation engine contracts of
// spec.md §4.2: acquire, release, release_keep_inactive, try_make_available
// and cancel, plus the bulk add/remove-continuations validators.
//
// The shape — a small stateless Engine holding only its store and config,
// with one method per contract, operating on tasks passed in and saved
// back explicitly — follows the teacher example's compute/computation
// package: small, composable operations over a shared tracker rather than
// a god-object.
package continuation

import (
	"context"
	"fmt"

	"github.com/banyan/banyan/internal/bnerr"
	"github.com/banyan/banyan/internal/config"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/logx"
	"github.com/banyan/banyan/internal/metrics"
	"github.com/banyan/banyan/internal/store"
)

// Engine applies the continuation contracts against a TaskStore. Callers
// are expected to hold lock.TaskLock for the duration of any call that
// touches more than one task.
type Engine struct {
	store       store.TaskStore
	log         *logx.Logger
	maxUpdates  int
	maxContSize int
	metrics     *metrics.Metrics
}

// New builds an Engine from process configuration.
func New(s store.TaskStore, cfg *config.Config, log *logx.Logger) *Engine {
	return &Engine{store: s, log: log, maxUpdates: cfg.MaxUpdates, maxContSize: cfg.MaxContSize}
}

// SetMetrics wires the process's metrics collectors. Optional.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Acquire implements acquire(child): child.pending_dependency_count += 1,
// with the precondition child.state = inactive (I4).
func (e *Engine) Acquire(ctx context.Context, parentID string, child *task.Task) error {
	if child.State != task.StatusInactive {
		return bnerr.Validation(bnerr.SubContinuationNotInactive,
			fmt.Sprintf("child %q is %q, not inactive", child.ID, child.State))
	}
	child.PendingDependencyCount++
	child.ParentIDs = appendUnique(child.ParentIDs, parentID)
	return e.store.PutTask(ctx, child)
}

// Release implements release(child): decrement, and if the count reaches
// zero, activate the child (available, or terminated+recurse if
// commandless).
func (e *Engine) Release(ctx context.Context, child *task.Task) error {
	if child.State != task.StatusInactive || child.PendingDependencyCount < 1 {
		return bnerr.Validation(bnerr.SubContinuationNotInactive,
			fmt.Sprintf("child %q cannot be released: state=%q count=%d", child.ID, child.State, child.PendingDependencyCount))
	}
	child.PendingDependencyCount--
	if child.PendingDependencyCount > 0 {
		return e.store.PutTask(ctx, child)
	}
	return e.Activate(ctx, child)
}

// ReleaseKeepInactive implements release_keep_inactive(child): decrement
// only, never transitioning state even if the count reaches zero.
func (e *Engine) ReleaseKeepInactive(ctx context.Context, child *task.Task) error {
	if child.PendingDependencyCount < 1 {
		return bnerr.Validation(bnerr.SubContinuationNotInactive,
			fmt.Sprintf("child %q has no pending dependency to release", child.ID))
	}
	child.PendingDependencyCount--
	return e.store.PutTask(ctx, child)
}

// TryMakeAvailable implements try_make_available(child): if the child is
// inactive with no pending dependencies, activate it. It is a no-op
// (not an error) if those preconditions don't hold, since callers invoke
// it speculatively after collapsing acquire/release pairs (Open Question
// (a) in spec.md §9).
func (e *Engine) TryMakeAvailable(ctx context.Context, child *task.Task) error {
	if child.State != task.StatusInactive || child.PendingDependencyCount != 0 {
		return nil
	}
	return e.Activate(ctx, child)
}

// Activate moves a dependency-free task to available (commandful) or
// terminated+recurse (commandless, I8). Exported so the coordinator can
// apply the same I8 short-circuit on a direct PATCH to available (spec.md
// S2), not only from within Release/TryMakeAvailable.
func (e *Engine) Activate(ctx context.Context, t *task.Task) error {
	if t.Command == "" {
		t.State = task.StatusTerminated
		if err := e.store.PutTask(ctx, t); err != nil {
			return err
		}
		for _, contID := range t.Continuations {
			cont, err := e.store.GetTask(ctx, contID)
			if err != nil {
				return fmt.Errorf("continuation: load %q during activation of %q: %w", contID, t.ID, err)
			}
			if err := e.TryMakeAvailable(ctx, cont); err != nil {
				return err
			}
		}
		return nil
	}
	t.State = task.StatusAvailable
	return e.store.PutTask(ctx, t)
}

// Cancel implements cancel(task): mark cancelled, recursively cancel every
// continuation (which must already be inactive per I4), then strip the
// task's own id out of every parent's continuations list.
func (e *Engine) Cancel(ctx context.Context, t *task.Task) error {
	if t.State.IsTerminal() {
		return nil
	}
	t.State = task.StatusCancelled
	if err := e.store.PutTask(ctx, t); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.TasksByState.WithLabelValues(string(task.StatusCancelled)).Inc()
		e.metrics.SubtreeCancels.Inc()
	}
	for _, contID := range t.Continuations {
		cont, err := e.store.GetTask(ctx, contID)
		if err != nil {
			return fmt.Errorf("continuation: load %q during cancel of %q: %w", contID, t.ID, err)
		}
		if err := e.Cancel(ctx, cont); err != nil {
			return err
		}
	}
	for _, parentID := range t.ParentIDs {
		parent, err := e.store.GetTask(ctx, parentID)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return err
		}
		parent.Continuations = removeString(parent.Continuations, t.ID)
		if err := e.store.PutTask(ctx, parent); err != nil {
			return err
		}
	}
	return nil
}

// ContinuationUpdate is one outer entry of a bulk add/remove payload
// (spec.md §4.2: "a sequence of {targets, values} updates").
type ContinuationUpdate struct {
	Targets []string `json:"targets"`
	Values  []string `json:"values"`
}

// ValidateBulk enforces the shape and size limits common to both bulk
// additions and removals: at most maxUpdates outer entries, each with at
// most maxContSize values.
func (e *Engine) ValidateBulk(updates []ContinuationUpdate) error {
	if len(updates) > e.maxUpdates {
		return bnerr.Validation(bnerr.SubSizeLimit,
			fmt.Sprintf("%d updates exceeds limit of %d", len(updates), e.maxUpdates))
	}
	for _, u := range updates {
		if len(u.Values) > e.maxContSize {
			return bnerr.Validation(bnerr.SubSizeLimit,
				fmt.Sprintf("update carries %d values, limit is %d", len(u.Values), e.maxContSize))
		}
	}
	return nil
}

// ApplyAdd applies a validated sequence of add_continuations updates:
// for each target, diff against current continuations, push new ids, and
// acquire() each newly added child. Enforces I4 on every target and value,
// and rejects values[i] that appear among that same update's targets
// (trivial self-loop prevention; full cycle detection is intentionally
// not performed, per spec.md Open Question (d)).
func (e *Engine) ApplyAdd(ctx context.Context, updates []ContinuationUpdate) error {
	if err := e.ValidateBulk(updates); err != nil {
		return err
	}
	for _, u := range updates {
		targetSet := make(map[string]bool, len(u.Targets))
		for _, id := range u.Targets {
			targetSet[id] = true
		}
		for _, id := range u.Values {
			if targetSet[id] {
				return bnerr.Validation(bnerr.SubSelfLoop,
					fmt.Sprintf("value %q also appears as a target in the same update", id))
			}
		}
		for _, targetID := range u.Targets {
			parent, err := e.store.GetTask(ctx, targetID)
			if err != nil {
				return err
			}
			if parent.State != task.StatusInactive {
				return bnerr.Validation(bnerr.SubContinuationNotInactive,
					fmt.Sprintf("target %q is %q, not inactive", targetID, parent.State))
			}
			existing := make(map[string]bool, len(parent.Continuations))
			for _, id := range parent.Continuations {
				existing[id] = true
			}
			for _, childID := range u.Values {
				if existing[childID] {
					continue
				}
				child, err := e.store.GetTask(ctx, childID)
				if err != nil {
					return err
				}
				if child.State != task.StatusInactive {
					return bnerr.Validation(bnerr.SubContinuationNotInactive,
						fmt.Sprintf("value %q is %q, not inactive", childID, child.State))
				}
				parent.Continuations = append(parent.Continuations, childID)
				if len(parent.Continuations) > e.maxContSize {
					return bnerr.Validation(bnerr.SubSizeLimit,
						fmt.Sprintf("target %q would exceed %d continuations", targetID, e.maxContSize))
				}
				if err := e.Acquire(ctx, targetID, child); err != nil {
					return err
				}
				existing[childID] = true
			}
			if err := e.store.PutTask(ctx, parent); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyRemove applies a validated sequence of remove_continuations
// updates: for each target, pull the intersection with its current
// continuations and release_keep_inactive() each. Never activates the
// removed child (spec.md Open Question (c)).
func (e *Engine) ApplyRemove(ctx context.Context, updates []ContinuationUpdate) error {
	if err := e.ValidateBulk(updates); err != nil {
		return err
	}
	for _, u := range updates {
		for _, targetID := range u.Targets {
			parent, err := e.store.GetTask(ctx, targetID)
			if err != nil {
				return err
			}
			removeSet := make(map[string]bool, len(u.Values))
			for _, id := range u.Values {
				removeSet[id] = true
			}
			remaining := parent.Continuations[:0:0]
			for _, childID := range parent.Continuations {
				if !removeSet[childID] {
					remaining = append(remaining, childID)
					continue
				}
				child, err := e.store.GetTask(ctx, childID)
				if err != nil {
					return err
				}
				if err := e.ReleaseKeepInactive(ctx, child); err != nil {
					return err
				}
			}
			parent.Continuations = remaining
			if err := e.store.PutTask(ctx, parent); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendUnique(ss []string, v string) []string {
	for _, s := range ss {
		if s == v {
			return ss
		}
	}
	return append(ss, v)
}

func removeString(ss []string, v string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
