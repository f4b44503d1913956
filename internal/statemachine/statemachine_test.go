package statemachine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banyan/banyan/internal/domain/task"
)

func TestProviderMayCancelInactiveOrAvailable(t *testing.T) {
	require.NoError(t, Validate(task.RoleProvider, task.StatusInactive, task.StatusCancelled))
	require.NoError(t, Validate(task.RoleProvider, task.StatusAvailable, task.StatusCancelled))
}

func TestProviderMayNotClaimOrTerminate(t *testing.T) {
	require.Error(t, Validate(task.RoleProvider, task.StatusAvailable, task.StatusRunning))
	require.Error(t, Validate(task.RoleProvider, task.StatusRunning, task.StatusTerminated))
}

func TestWorkerMayClaimAndReport(t *testing.T) {
	require.NoError(t, Validate(task.RoleWorker, task.StatusAvailable, task.StatusRunning))
	require.NoError(t, Validate(task.RoleWorker, task.StatusRunning, task.StatusTerminated))
	require.NoError(t, Validate(task.RoleWorker, task.StatusPendingCancellation, task.StatusCancelled))
	require.NoError(t, Validate(task.RoleWorker, task.StatusPendingCancellation, task.StatusTerminated))
}

func TestWorkerMayNotDirectlyCancel(t *testing.T) {
	require.Error(t, Validate(task.RoleWorker, task.StatusAvailable, task.StatusCancelled))
}

func TestSameStateIsAlwaysANoop(t *testing.T) {
	require.NoError(t, Validate(task.RoleProvider, task.StatusRunning, task.StatusRunning))
	require.NoError(t, Validate(task.RoleWorker, task.StatusTerminated, task.StatusTerminated))
}

func TestUnknownStateRejected(t *testing.T) {
	err := Validate(task.RoleProvider, task.StatusInactive, task.Status("bogus"))
	require.Error(t, err)
}

func TestTerminalStatesAcceptNoFurtherTransitions(t *testing.T) {
	for _, terminal := range []task.Status{task.StatusCancelled, task.StatusTerminated} {
		require.False(t, Allowed(task.RoleProvider, terminal, task.StatusAvailable))
		require.False(t, Allowed(task.RoleWorker, terminal, task.StatusAvailable))
	}
}

func TestSystemTableAllowsRetryAndDependencyResolution(t *testing.T) {
	require.True(t, AllowedSystem(task.StatusRunning, task.StatusAvailable))
	require.True(t, AllowedSystem(task.StatusInactive, task.StatusAvailable))
	require.True(t, AllowedSystem(task.StatusInactive, task.StatusTerminated))
}

func TestRequiresExecutionData(t *testing.T) {
	require.True(t, RequiresExecutionData(task.StatusTerminated))
	require.False(t, RequiresExecutionData(task.StatusCancelled))
}
