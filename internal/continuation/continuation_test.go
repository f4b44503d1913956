package continuation

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/banyan/banyan/internal/config"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/logx"
	"github.com/banyan/banyan/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.TaskStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := store.NewRedisStore(rdb)
	cfg := &config.Config{MaxUpdates: config.DefaultMaxUpdates, MaxContSize: config.DefaultMaxContSize}
	return New(s, cfg, logx.New("test")), s
}

func TestAcquireRequiresInactive(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	child := &task.Task{ID: "c", State: task.StatusAvailable}
	require.NoError(t, s.PutTask(ctx, child))

	err := eng.Acquire(ctx, "p", child)
	require.Error(t, err)
}

func TestReleaseActivatesCommandfulChild(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	child := &task.Task{ID: "c", Command: "echo hi", State: task.StatusInactive, PendingDependencyCount: 1}
	require.NoError(t, s.PutTask(ctx, child))

	require.NoError(t, eng.Release(ctx, child))
	got, err := s.GetTask(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, task.StatusAvailable, got.State)
	require.Equal(t, 0, got.PendingDependencyCount)
}

func TestReleaseTerminatesCommandlessAndRecurses(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	grandchild := &task.Task{ID: "gc", Command: "x", State: task.StatusInactive, PendingDependencyCount: 1}
	group := &task.Task{ID: "g", State: task.StatusInactive, PendingDependencyCount: 1, Continuations: []string{"gc"}}
	require.NoError(t, s.PutTask(ctx, grandchild))
	require.NoError(t, s.PutTask(ctx, group))

	require.NoError(t, eng.Release(ctx, group))

	gotGroup, err := s.GetTask(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, task.StatusTerminated, gotGroup.State)

	gotGC, err := s.GetTask(ctx, "gc")
	require.NoError(t, err)
	require.Equal(t, task.StatusAvailable, gotGC.State)
	require.Equal(t, 0, gotGC.PendingDependencyCount)
}

func TestReleaseKeepInactiveNeverActivates(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	child := &task.Task{ID: "c", Command: "x", State: task.StatusInactive, PendingDependencyCount: 1}
	require.NoError(t, s.PutTask(ctx, child))

	require.NoError(t, eng.ReleaseKeepInactive(ctx, child))
	got, err := s.GetTask(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, task.StatusInactive, got.State)
	require.Equal(t, 0, got.PendingDependencyCount)
}

func TestCancelPropagatesAndStripsParentLinks(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	p := &task.Task{ID: "p", State: task.StatusInactive, Continuations: []string{"c1", "c2"}}
	c1 := &task.Task{ID: "c1", State: task.StatusInactive, ParentIDs: []string{"p"}}
	c2 := &task.Task{ID: "c2", State: task.StatusInactive, ParentIDs: []string{"p"}}
	require.NoError(t, s.PutTask(ctx, p))
	require.NoError(t, s.PutTask(ctx, c1))
	require.NoError(t, s.PutTask(ctx, c2))

	require.NoError(t, eng.Cancel(ctx, p))

	for _, id := range []string{"p", "c1", "c2"} {
		got, err := s.GetTask(ctx, id)
		require.NoError(t, err)
		require.Equal(t, task.StatusCancelled, got.State)
	}
}

func TestApplyAddRejectsSelfLoop(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	a := &task.Task{ID: "a", State: task.StatusInactive}
	require.NoError(t, s.PutTask(ctx, a))

	err := eng.ApplyAdd(ctx, []ContinuationUpdate{{Targets: []string{"a"}, Values: []string{"a"}}})
	require.Error(t, err)
}

func TestApplyAddAcquiresNewChildren(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	parent := &task.Task{ID: "p", State: task.StatusInactive}
	child := &task.Task{ID: "c", State: task.StatusInactive}
	require.NoError(t, s.PutTask(ctx, parent))
	require.NoError(t, s.PutTask(ctx, child))

	err := eng.ApplyAdd(ctx, []ContinuationUpdate{{Targets: []string{"p"}, Values: []string{"c"}}})
	require.NoError(t, err)

	gotParent, err := s.GetTask(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, gotParent.Continuations)

	gotChild, err := s.GetTask(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, 1, gotChild.PendingDependencyCount)
}

func TestApplyRemoveNeverActivates(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	parent := &task.Task{ID: "p", State: task.StatusInactive, Continuations: []string{"c"}}
	child := &task.Task{ID: "c", Command: "x", State: task.StatusInactive, PendingDependencyCount: 1, ParentIDs: []string{"p"}}
	require.NoError(t, s.PutTask(ctx, parent))
	require.NoError(t, s.PutTask(ctx, child))

	err := eng.ApplyRemove(ctx, []ContinuationUpdate{{Targets: []string{"p"}, Values: []string{"c"}}})
	require.NoError(t, err)

	gotParent, err := s.GetTask(ctx, "p")
	require.NoError(t, err)
	require.Empty(t, gotParent.Continuations)

	gotChild, err := s.GetTask(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, task.StatusInactive, gotChild.State)
	require.Equal(t, 0, gotChild.PendingDependencyCount)
}

func TestValidateBulkSizeLimits(t *testing.T) {
	eng, _ := newTestEngine(t)
	many := make([]ContinuationUpdate, config.DefaultMaxUpdates+1)
	err := eng.ValidateBulk(many)
	require.Error(t, err)
}
