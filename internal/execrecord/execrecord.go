// Package execrecord implements the execution-record engine of spec.md
// §4.3: minting attempt tokens on claim, verifying them on report, and
// routing a terminated report to success (release continuations), retry
// (mint a new attempt), or subtree cancellation (max attempts exhausted).
package execrecord

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banyan/banyan/internal/bnerr"
	"github.com/banyan/banyan/internal/config"
	"github.com/banyan/banyan/internal/continuation"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/logx"
	"github.com/banyan/banyan/internal/metrics"
	"github.com/banyan/banyan/internal/store"
)

// tokenAlphabet excludes ':' per spec.md §4.3 ("excluding ':'") — the
// character the Basic-auth header uses to join name and token.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Engine mints and verifies execution-attempt tokens and applies the
// claim/report state transitions. Callers are expected to hold
// lock.TaskLock for the duration of any call.
type Engine struct {
	store    store.TaskStore
	cont     *continuation.Engine
	log      *logx.Logger
	tokenLen int
	metrics  *metrics.Metrics
}

// New builds an Engine.
func New(s store.TaskStore, cont *continuation.Engine, cfg *config.Config, log *logx.Logger) *Engine {
	return &Engine{store: s, cont: cont, log: log, tokenLen: cfg.TokenLen}
}

// SetMetrics wires the process's metrics collectors. Optional — a nil
// metrics field leaves every counter call a no-op, so tests that build an
// Engine via New need not call this.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// NewToken generates a cryptographically strong alphanumeric token of the
// engine's configured length.
func (e *Engine) NewToken() (string, error) {
	return randomToken(e.tokenLen)
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("execrecord: generate token: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(out), nil
}

// Claim implements lifecycle step 1: a worker PATCHes an available task to
// running. On a task's very first claim (attempt_count == 0, no execution
// record yet) it mints a fresh attempt. On every claim after a failed
// retry, the record for this attempt was already pre-minted by retry() —
// claim only assigns it to the claiming worker and advances attempt_count,
// it never mints a second record for the same attempt (that would orphan
// the one retry() produced and double-count attempt_count). The caller is
// responsible for having already validated the available->running
// transition via statemachine.Validate.
func (e *Engine) Claim(ctx context.Context, t *task.Task, workerID string) (*task.ExecutionRecord, error) {
	if t.AttemptCount >= t.MaxAttemptCount && t.MaxAttemptCount > 0 {
		return nil, bnerr.Validation(bnerr.SubBadTransition,
			fmt.Sprintf("task %q has exhausted its %d attempts", t.ID, t.MaxAttemptCount))
	}

	if t.ExecutionDataID != "" {
		if rec, err := e.store.GetExecutionRecord(ctx, t.ExecutionDataID); err == nil && rec.WorkerID == "" {
			return e.claimPending(ctx, t, rec, workerID)
		}
	}

	token, err := e.NewToken()
	if err != nil {
		return nil, err
	}
	rec := &task.ExecutionRecord{
		ID:           uuid.NewString(),
		TaskID:       t.ID,
		AttemptCount: t.AttemptCount + 1,
		WorkerID:     workerID,
		Token:        token,
		TimeStarted:  time.Now().UTC(),
	}
	if err := e.store.PutExecutionRecord(ctx, rec); err != nil {
		return nil, err
	}
	t.AttemptCount++
	t.ExecutionDataID = rec.ID
	t.State = task.StatusRunning
	if err := e.store.PutTask(ctx, t); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.AttemptsStarted.Inc()
		e.metrics.TasksByState.WithLabelValues(string(task.StatusRunning)).Inc()
	}
	return rec, nil
}

// claimPending assigns an already-pre-minted (retry-produced) execution
// record to the claiming worker, without minting a second record for the
// same attempt.
func (e *Engine) claimPending(ctx context.Context, t *task.Task, rec *task.ExecutionRecord, workerID string) (*task.ExecutionRecord, error) {
	rec.WorkerID = workerID
	rec.TimeStarted = time.Now().UTC()
	if err := e.store.PutExecutionRecord(ctx, rec); err != nil {
		return nil, err
	}
	t.AttemptCount++
	t.State = task.StatusRunning
	if err := e.store.PutTask(ctx, t); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.AttemptsStarted.Inc()
		e.metrics.TasksByState.WithLabelValues(string(task.StatusRunning)).Inc()
	}
	return rec, nil
}

// ReportInput is the update_execution_data payload accompanying a worker's
// PATCH to terminated (spec.md §4.3 step 2).
type ReportInput struct {
	Token          string
	ExitStatus     task.ExitStatus
	TimeTerminated time.Time
	Usage          task.ResourceUsage
}

// Report implements lifecycle step 2. It verifies in.Token against the
// task's current execution record (MissingExecutionData / Unauthorized on
// mismatch) and then routes to success, retry, or subtree cancellation.
func (e *Engine) Report(ctx context.Context, t *task.Task, in ReportInput) error {
	if t.ExecutionDataID == "" {
		return bnerr.Validation(bnerr.SubMissingExecutionData, "task has no current execution record")
	}
	rec, err := e.store.GetExecutionRecord(ctx, t.ExecutionDataID)
	if err != nil {
		return bnerr.Validation(bnerr.SubMissingExecutionData, "current execution record not found")
	}
	if rec.Token != in.Token {
		return bnerr.Unauthorized("execution token does not match the current attempt")
	}

	terminatedAt := in.TimeTerminated
	rec.TimeTerminated = &terminatedAt
	rec.ExitStatus = in.ExitStatus
	rec.Usage = in.Usage
	if err := e.store.PutExecutionRecord(ctx, rec); err != nil {
		return err
	}

	t.State = task.StatusTerminated
	if err := e.store.PutTask(ctx, t); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.TasksByState.WithLabelValues(string(task.StatusTerminated)).Inc()
	}

	switch in.ExitStatus {
	case task.ExitSuccess:
		return e.releaseContinuations(ctx, t)
	case task.ExitFailure:
		if t.MaxAttemptCount == 0 || t.AttemptCount < t.MaxAttemptCount {
			if e.metrics != nil {
				e.metrics.AttemptsRetried.Inc()
			}
			return e.retry(ctx, t)
		}
		if e.metrics != nil {
			e.metrics.SubtreeCancels.Inc()
		}
		return e.cancelContinuations(ctx, t)
	default:
		return bnerr.Validation(bnerr.SubUnknownField, fmt.Sprintf("unknown exit_status %q", in.ExitStatus))
	}
}

// UpdateUsage applies an idempotent resource-usage report (spec.md §4.3
// step 3), still token-gated, targeting the record named by
// task.execution_data_id.
func (e *Engine) UpdateUsage(ctx context.Context, t *task.Task, token string, usage task.ResourceUsage) error {
	if t.ExecutionDataID == "" {
		return bnerr.Validation(bnerr.SubMissingExecutionData, "task has no current execution record")
	}
	rec, err := e.store.GetExecutionRecord(ctx, t.ExecutionDataID)
	if err != nil {
		return bnerr.Validation(bnerr.SubMissingExecutionData, "current execution record not found")
	}
	if rec.Token != token {
		return bnerr.Unauthorized("execution token does not match the current attempt")
	}
	if usage.LastUpdate.IsZero() {
		usage.LastUpdate = time.Now().UTC()
	}
	rec.Usage = usage
	return e.store.PutExecutionRecord(ctx, rec)
}

func (e *Engine) releaseContinuations(ctx context.Context, t *task.Task) error {
	for _, contID := range t.Continuations {
		child, err := e.store.GetTask(ctx, contID)
		if err != nil {
			return err
		}
		if err := e.cont.Release(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) cancelContinuations(ctx context.Context, t *task.Task) error {
	for _, contID := range t.Continuations {
		child, err := e.store.GetTask(ctx, contID)
		if err != nil {
			return err
		}
		if err := e.cont.Cancel(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// retry writes the exhausted record's final fields (already done by the
// caller before invoking Report's routing), pre-mints the next attempt's
// record, and returns the task to available without releasing
// continuations. It does not bump attempt_count — attempt_count advances
// when the pre-minted record is actually claimed (Claim's claimPending
// path), not when it is merely minted, so a claim-then-fail cycle with no
// reclaim yet still reports attempt_count == 1 (spec.md S3).
func (e *Engine) retry(ctx context.Context, t *task.Task) error {
	token, err := e.NewToken()
	if err != nil {
		return err
	}
	rec := &task.ExecutionRecord{
		ID:           uuid.NewString(),
		TaskID:       t.ID,
		AttemptCount: t.AttemptCount + 1,
		TimeStarted:  time.Now().UTC(),
		Token:        token,
	}
	if err := e.store.PutExecutionRecord(ctx, rec); err != nil {
		return err
	}
	t.ExecutionDataID = rec.ID
	t.State = task.StatusAvailable
	return e.store.PutTask(ctx, t)
}
