// Package coordinator implements the task-lifecycle hooks of spec.md §4.5:
// pre-write lock acquisition and provider-cancel rewriting, on-insert/
// on-update field splitting, and post-insert/post-update continuation and
// execution-record routing — the glue between the HTTP layer and the
// continuation/execrecord/statemachine engines.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banyan/banyan/internal/bnerr"
	"github.com/banyan/banyan/internal/continuation"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/execrecord"
	"github.com/banyan/banyan/internal/lock"
	"github.com/banyan/banyan/internal/logx"
	"github.com/banyan/banyan/internal/metrics"
	"github.com/banyan/banyan/internal/statemachine"
	"github.com/banyan/banyan/internal/store"
	"github.com/banyan/banyan/internal/vresource"
)

// Coordinator serializes and applies every task-graph mutation under
// task_lock, and every registered-worker mutation under
// worker_registry_lock.
type Coordinator struct {
	log     *logx.Logger
	store   store.TaskStore
	locks   *lock.Registry
	cont    *continuation.Engine
	exec    *execrecord.Engine
	metrics *metrics.Metrics
}

// New builds a Coordinator.
func New(s store.TaskStore, locks *lock.Registry, cont *continuation.Engine, exec *execrecord.Engine, log *logx.Logger) *Coordinator {
	return &Coordinator{log: log, store: s, locks: locks, cont: cont, exec: exec}
}

// SetMetrics wires the process's metrics collectors. Optional.
func (c *Coordinator) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

func (c *Coordinator) countTransition(to task.Status) {
	if c.metrics != nil {
		c.metrics.TasksByState.WithLabelValues(string(to)).Inc()
	}
}

// CreateTaskInput is the decoded POST /tasks payload.
type CreateTaskInput struct {
	Name               string
	Command            string
	State              task.Status
	RequestedResources task.RequestedResources
	EstimatedRuntimeMs int64
	MaxShutdownTimeMs  int64
	MaxAttemptCount    int
}

// CreateTask implements POST /tasks's pre-write/on-insert/post-insert
// hooks: acquire task_lock; short-circuit a commandless task created
// available straight to terminated (I8); then acquire() every listed
// continuation, or try_make_available() them if the task was
// short-circuited.
func (c *Coordinator) CreateTask(ctx context.Context, in CreateTaskInput, continuations []string) (*task.Task, error) {
	if in.State == "" {
		in.State = task.StatusInactive
	}
	if !in.State.Valid() || (in.State != task.StatusInactive && in.State != task.StatusAvailable) {
		return nil, bnerr.Validation(bnerr.SubBadTransition, "a task may only be created inactive or available")
	}

	var created *task.Task
	err := c.locks.With(lock.TaskLock, func() error {
		t := &task.Task{
			ID:                 uuid.NewString(),
			Name:               in.Name,
			Command:            in.Command,
			State:              in.State,
			RequestedResources: in.RequestedResources,
			EstimatedRuntimeMs: in.EstimatedRuntimeMs,
			MaxShutdownTimeMs:  in.MaxShutdownTimeMs,
			MaxAttemptCount:    in.MaxAttemptCount,
			Continuations:      continuations,
			CreatedAt:          time.Now().UTC(),
			UpdatedAt:          time.Now().UTC(),
		}

		// on insert: a commandless task entering available is rewritten to
		// terminated (I8) before it is ever persisted in that state.
		shortCircuited := t.Command == "" && t.State == task.StatusAvailable
		if shortCircuited {
			t.State = task.StatusTerminated
		}

		if err := c.store.PutTask(ctx, t); err != nil {
			if err == store.ErrDuplicateName {
				return bnerr.Conflict("name", t.Name)
			}
			return err
		}
		c.countTransition(t.State)

		// post insert: acquire every continuation, or — if the task was
		// short-circuited straight to terminated — try to activate them
		// instead, since they were never actually depended upon.
		for _, contID := range t.Continuations {
			child, err := c.store.GetTask(ctx, contID)
			if err != nil {
				return err
			}
			if shortCircuited {
				if err := c.cont.TryMakeAvailable(ctx, child); err != nil {
					return err
				}
				continue
			}
			if err := c.cont.Acquire(ctx, t.ID, child); err != nil {
				return err
			}
		}

		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.store.GetTask(ctx, created.ID)
}

// PatchResult carries the updated task plus, when the patch just
// transitioned it to running, the freshly minted attempt token to inject
// into the HTTP response body (spec.md §4.5).
type PatchResult struct {
	Task        *task.Task
	MintedToken string
}

// PatchTaskInput is the decoded PATCH /tasks/{id} payload, already split
// by vresource.PatchPayload.Split into physical fields and virtual keys.
type PatchTaskInput struct {
	Role                task.Role
	NewState            task.Status
	HasNewState         bool
	Name                string
	HasName             bool
	AddContinuations    []string
	RemoveContinuations []string
	ExecutionUpdate     *vresource.ExecutionDataUpdate
	WorkerID            string // the authenticated worker's id, for claim
}

// PatchTask implements PATCH /tasks/{id}'s full hook chain: pre-write
// lock + provider-cancel rewrite, on-update field application,
// post-update virtual-resource application, and state-exit routing.
func (c *Coordinator) PatchTask(ctx context.Context, taskID string, in PatchTaskInput) (*PatchResult, error) {
	var result PatchResult
	err := c.locks.With(lock.TaskLock, func() error {
		t, err := c.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}

		if in.HasName && in.Name != t.Name {
			t.Name = in.Name
			if err := c.store.PutTask(ctx, t); err != nil {
				return err
			}
		}

		if in.HasNewState {
			to := in.NewState
			// pre-write: a provider cancelling a running task is rewritten to
			// pending_cancellation (spec.md §4.5, Open Question (b) — both the
			// rewritten and the direct running->pending_cancellation request
			// are accepted).
			if in.Role == task.RoleProvider && t.State == task.StatusRunning && to == task.StatusCancelled {
				to = task.StatusPendingCancellation
			}
			if err := statemachine.Validate(in.Role, t.State, to); err != nil {
				return err
			}
			if to == task.StatusRunning {
				if err := c.checkWorkerPermission(ctx, in.WorkerID, task.PermissionClaim); err != nil {
					return err
				}
				rec, err := c.exec.Claim(ctx, t, in.WorkerID)
				if err != nil {
					return err
				}
				result.MintedToken = rec.Token
			} else if to == task.StatusTerminated {
				if in.ExecutionUpdate == nil {
					return bnerr.Validation(bnerr.SubMissingExecutionData, "terminated report requires update_execution_data")
				}
				if err := c.checkWorkerPermission(ctx, c.reportingWorkerID(ctx, t), task.PermissionReport); err != nil {
					return err
				}
				if err := c.applyTermination(ctx, t, *in.ExecutionUpdate); err != nil {
					return err
				}
			} else if to == task.StatusAvailable && t.Command == "" {
				// I8: a commandless task entering available is short-circuited
				// to terminated wherever it happens, not just on insert (S2).
				// Unlike the insert-time path (where continuations are never
				// separately acquired — Open Question (a) collapses the
				// acquire+release pair into try_make_available), a task
				// reaching this point via PATCH already acquired its
				// continuations through an earlier add_continuations call, so
				// completing it here must release() them, not try_make_available.
				t.State = task.StatusTerminated
				if err := c.store.PutTask(ctx, t); err != nil {
					return err
				}
				c.countTransition(task.StatusTerminated)
				for _, contID := range t.Continuations {
					child, err := c.store.GetTask(ctx, contID)
					if err != nil {
						return err
					}
					if err := c.cont.Release(ctx, child); err != nil {
						return err
					}
				}
			} else {
				t.State = to
				if err := c.store.PutTask(ctx, t); err != nil {
					return err
				}
				c.countTransition(to)
			}
		}

		// post update: apply embedded virtual resources against the same
		// task, under the same lock acquisition.
		if len(in.AddContinuations) > 0 {
			if err := c.cont.ApplyAdd(ctx, vresource.NormalizeItemLevel(taskID, in.AddContinuations)); err != nil {
				return err
			}
		}
		if len(in.RemoveContinuations) > 0 {
			if err := c.cont.ApplyRemove(ctx, vresource.NormalizeItemLevel(taskID, in.RemoveContinuations)); err != nil {
				return err
			}
		}

		// state-exit handling: a direct cancel (not the terminated-failure
		// subtree cancel path, already applied inside applyTermination)
		// propagates to every continuation.
		if in.HasNewState && t.State == task.StatusCancelled {
			if err := c.cont.Cancel(ctx, t); err != nil {
				return err
			}
		}

		fresh, err := c.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		result.Task = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// checkWorkerPermission implements SPEC_FULL.md §4.4: a worker registered
// without the given permission may not drive that transition, even though
// its role (worker) otherwise passes statemachine.Validate. Unregistered
// workers are unaffected — permission scoping only tightens the registered
// fleet, it does not require registration up front.
func (c *Coordinator) checkWorkerPermission(ctx context.Context, workerID string, want task.WorkerPermission) error {
	if workerID == "" {
		return nil
	}
	w, err := c.store.GetWorker(ctx, workerID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}
	if !w.HasPermission(want) {
		return bnerr.Unauthorized(fmt.Sprintf("worker %q lacks %q permission", workerID, want))
	}
	return nil
}

// reportingWorkerID resolves the worker id that claimed t's current
// execution attempt, for the report-time permission check — the PATCH
// terminated payload doesn't carry a worker id directly, only the
// attempt token.
func (c *Coordinator) reportingWorkerID(ctx context.Context, t *task.Task) string {
	if t.ExecutionDataID == "" {
		return ""
	}
	rec, err := c.store.GetExecutionRecord(ctx, t.ExecutionDataID)
	if err != nil {
		return ""
	}
	return rec.WorkerID
}

func (c *Coordinator) applyTermination(ctx context.Context, t *task.Task, upd vresource.ExecutionDataUpdate) error {
	terminatedAt := time.Now().UTC()
	if upd.TimeTerminated != "" {
		if parsed, err := time.Parse(time.RFC3339, upd.TimeTerminated); err == nil {
			terminatedAt = parsed
		}
	}
	return c.exec.Report(ctx, t, execrecord.ReportInput{
		Token:          upd.Token,
		ExitStatus:     task.ExitStatus(upd.ExitStatus),
		TimeTerminated: terminatedAt,
		Usage: task.ResourceUsage{
			MemoryBytes: upd.MemoryBytes,
			CPUUsage:    upd.CPUUsage,
			GPUUsage:    upd.GPUUsage,
			LastUpdate:  terminatedAt,
		},
	})
}

// ApplyResourceLevelAdd implements POST /tasks/add_continuations.
func (c *Coordinator) ApplyResourceLevelAdd(ctx context.Context, updates []continuation.ContinuationUpdate) error {
	return c.locks.With(lock.TaskLock, func() error {
		return c.cont.ApplyAdd(ctx, updates)
	})
}

// ApplyResourceLevelRemove implements POST /tasks/remove_continuations.
func (c *Coordinator) ApplyResourceLevelRemove(ctx context.Context, updates []continuation.ContinuationUpdate) error {
	return c.locks.With(lock.TaskLock, func() error {
		return c.cont.ApplyRemove(ctx, updates)
	})
}

// UpdateExecutionUsage implements item-level POST /tasks/{id}/update_execution_data
// when called with a resource-usage sample rather than a terminal report.
func (c *Coordinator) UpdateExecutionUsage(ctx context.Context, taskID, token string, usage task.ResourceUsage) error {
	return c.locks.With(lock.TaskLock, func() error {
		t, err := c.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		return c.exec.UpdateUsage(ctx, t, token, usage)
	})
}

// RegisterWorker implements POST /registered_workers under
// worker_registry_lock.
func (c *Coordinator) RegisterWorker(ctx context.Context, w *task.RegisteredWorker) error {
	return c.locks.With(lock.WorkerRegistryLock, func() error {
		if w.WorkerID == "" {
			w.WorkerID = uuid.NewString()
		}
		w.CreatedAt = time.Now().UTC()
		if err := c.store.PutWorker(ctx, w); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.RegisteredWorkers.Inc()
		}
		return nil
	})
}

// DeregisterWorker implements DELETE /registered_workers/{id} under
// worker_registry_lock.
func (c *Coordinator) DeregisterWorker(ctx context.Context, workerID string) error {
	return c.locks.With(lock.WorkerRegistryLock, func() error {
		if _, err := c.store.GetWorker(ctx, workerID); err != nil {
			if err == store.ErrNotFound {
				return bnerr.NotFound("registered_worker", workerID)
			}
			return err
		}
		if err := c.store.DeleteWorker(ctx, workerID); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.RegisteredWorkers.Dec()
		}
		return nil
	})
}

// GetTask is a thin read-path passthrough (reads don't require task_lock:
// spec.md's concurrency model only serializes mutations).
func (c *Coordinator) GetTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, bnerr.NotFound("task", id)
		}
		return nil, err
	}
	return t, nil
}

// ListTasks is a thin read-path passthrough backing GET /tasks.
func (c *Coordinator) ListTasks(ctx context.Context) ([]*task.Task, error) {
	return c.store.ListTasks(ctx)
}

// FindTaskByName backs the SPEC_FULL.md §4.3 GET /tasks?name= lookup.
func (c *Coordinator) FindTaskByName(ctx context.Context, name string) (*task.Task, error) {
	t, err := c.store.FindTaskByName(ctx, name)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, bnerr.NotFound("task", name)
		}
		return nil, err
	}
	return t, nil
}

// ExecutionInfo backs GET /execution_info/{id}.
func (c *Coordinator) ExecutionInfo(ctx context.Context, id string) (*task.ExecutionRecord, error) {
	r, err := c.store.GetExecutionRecord(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, bnerr.NotFound("execution_info", id)
		}
		return nil, err
	}
	return r, nil
}

// ExecutionInfoForTask backs the SPEC_FULL.md §4.2 execution-history read
// model: GET /execution_info?task_id=.
func (c *Coordinator) ExecutionInfoForTask(ctx context.Context, taskID string) ([]*task.ExecutionRecord, error) {
	return c.store.FindExecutionRecordsByTask(ctx, taskID)
}

// ListWorkers backs any dashboard/debug listing of registered workers.
func (c *Coordinator) ListWorkers(ctx context.Context) ([]*task.RegisteredWorker, error) {
	return c.store.ListWorkers(ctx)
}

// CancelTasksForWorker implements spec.md §4.6's dead-worker sweep: when the
// notifier's control connection to a worker fails outside of a clean
// Deregister, cancel() every task whose current execution attempt that
// worker claimed. Wired as the notifier.DeadWorkerFunc from cmd/banyand.
func (c *Coordinator) CancelTasksForWorker(ctx context.Context, workerID string) {
	err := c.locks.With(lock.TaskLock, func() error {
		tasks, err := c.store.ListTasks(ctx)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.State != task.StatusRunning || t.ExecutionDataID == "" {
				continue
			}
			rec, err := c.store.GetExecutionRecord(ctx, t.ExecutionDataID)
			if err != nil {
				continue
			}
			if rec.WorkerID != workerID {
				continue
			}
			if err := c.cont.Cancel(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.log.Errorf("cancel tasks for dead worker %q: %v", workerID, err)
	}
}
