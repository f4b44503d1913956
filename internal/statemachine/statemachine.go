// Package statemachine implements the task lifecycle transition tables
// (spec.md §4.1): which Status a task may move to, scoped by which role
// (provider or worker) is requesting the move, plus the union table used
// when validating a state value regardless of actor.
//
// The table-driven shape — a map from (from, to) to an allow/deny decision,
// consulted by a single Allowed entry point — follows the teacher example's
// ComponentRole-keyed dispatch in compute/components/common.go, generalized
// from a two-role switch to a role x status transition table.
package statemachine

import (
	"fmt"

	"github.com/banyan/banyan/internal/bnerr"
	"github.com/banyan/banyan/internal/domain/task"
)

type transition struct {
	from task.Status
	to   task.Status
}

// providerTable is spec.md §4.1's provider-initiated table exactly:
// inactive -> {available, cancelled}; available -> {cancelled};
// running -> {pending_cancellation}; pending_cancellation/cancelled/
// terminated -> {}.
var providerTable = map[transition]bool{
	{task.StatusInactive, task.StatusAvailable}:          true,
	{task.StatusInactive, task.StatusCancelled}:          true,
	{task.StatusAvailable, task.StatusCancelled}:         true,
	{task.StatusRunning, task.StatusPendingCancellation}: true,
}

// workerTable is spec.md §4.1's worker-initiated table exactly:
// available -> {running}; running -> {terminated};
// pending_cancellation -> {cancelled, terminated}; others -> {}.
//
// The further running->available (retry) and terminated-stays-terminated
// plus subtree cancel (max attempts exhausted) outcomes described in
// spec.md §4.3 are not additional entries a worker may directly request —
// they are system-computed consequences the coordinator applies after a
// running->terminated report, so they live in systemTable instead.
var workerTable = map[transition]bool{
	{task.StatusAvailable, task.StatusRunning}:             true,
	{task.StatusRunning, task.StatusTerminated}:            true,
	{task.StatusPendingCancellation, task.StatusCancelled}: true,
	{task.StatusPendingCancellation, task.StatusTerminated}: true,
}

// systemTable lists transitions driven by the coordinator itself rather
// than a role's direct request: dependency resolution (inactive ->
// available/terminated via try_make_available), the empty-command
// short-circuit (I8), the failure-retry return to available, and
// cancel-subtree propagation (including the availability checker
// cancelling tasks of a missing worker).
var systemTable = map[transition]bool{
	{task.StatusInactive, task.StatusAvailable}:             true,
	{task.StatusInactive, task.StatusTerminated}:             true,
	{task.StatusInactive, task.StatusCancelled}:              true,
	{task.StatusAvailable, task.StatusCancelled}:             true,
	{task.StatusRunning, task.StatusAvailable}:               true,
	{task.StatusRunning, task.StatusCancelled}:               true,
	{task.StatusPendingCancellation, task.StatusCancelled}:   true,
}

// Allowed reports whether role may move a task directly from "from" to
// "to". It consults only the requesting role's own table — systemTable is
// never a fallback here, since several of its entries (running->available
// retry, available->cancelled subtree cancel) are coordinator-only moves
// that §4.1 does not grant to either role directly; exposing them through
// Allowed would let a provider steal a running task back from its worker,
// or a worker cancel any available task outright.
func Allowed(role task.Role, from, to task.Status) bool {
	t := transition{from, to}
	switch role {
	case task.RoleProvider:
		return providerTable[t]
	case task.RoleWorker:
		return workerTable[t]
	}
	return false
}

// AllowedSystem reports whether the coordinator itself may apply the given
// transition outside of any request (dependency resolution, empty-command
// short-circuit, availability-checker subtree cancellation).
func AllowedSystem(from, to task.Status) bool {
	return systemTable[transition{from, to}]
}

// Validate returns a bnerr.Error of Kind ValidationFailed/SubBadTransition
// if role may not move a task from "from" to "to"; nil otherwise.
func Validate(role task.Role, from, to task.Status) error {
	if !to.Valid() {
		return bnerr.Validation(bnerr.SubBadTransition, fmt.Sprintf("unknown state %q", to))
	}
	if from == to {
		// No-op updates (e.g. re-PATCHing the same state) are never a
		// transition and are always allowed to pass through untouched.
		return nil
	}
	if !Allowed(role, from, to) {
		return bnerr.Validation(bnerr.SubBadTransition,
			fmt.Sprintf("%s may not move task from %q to %q", role, from, to))
	}
	return nil
}

// RequiresExecutionData reports whether entering "to" from a running/
// pending_cancellation state as a worker report must be accompanied by an
// execution_data_id (spec.md I-series: terminated/cancelled worker reports
// carry exit status and usage via the linked execution record).
func RequiresExecutionData(to task.Status) bool {
	return to == task.StatusTerminated
}
