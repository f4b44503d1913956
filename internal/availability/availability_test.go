package availability

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/banyan/banyan/internal/config"
	"github.com/banyan/banyan/internal/continuation"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/lock"
	"github.com/banyan/banyan/internal/logx"
	"github.com/banyan/banyan/internal/notifier"
	"github.com/banyan/banyan/internal/store"
)

func newTestChecker(t *testing.T) (*Checker, store.TaskStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := store.NewRedisStore(rdb)
	cfg := &config.Config{MaxContSize: config.DefaultMaxContSize, MaxUpdates: config.DefaultMaxUpdates}
	cont := continuation.New(s, cfg, logx.New("test"))
	n, err := notifier.New(logx.New("test"), nil)
	require.NoError(t, err)
	return New(s, lock.NewRegistry(), cont, n, time.Minute, logx.New("test")), s
}

func TestDeclareWorkerMissingCancelsItsRunningTasks(t *testing.T) {
	ctx := context.Background()
	c, s := newTestChecker(t)

	rec := &task.ExecutionRecord{ID: "r1", TaskID: "t1", WorkerID: "w1"}
	require.NoError(t, s.PutExecutionRecord(ctx, rec))

	tk := &task.Task{ID: "t1", Command: "x", State: task.StatusRunning, ExecutionDataID: "r1"}
	require.NoError(t, s.PutTask(ctx, tk))

	c.declareWorkerMissing(ctx, "w1")

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, task.StatusCancelled, got.State)
}

func TestProgressedSinceFalseForStaleWorker(t *testing.T) {
	ctx := context.Background()
	c, s := newTestChecker(t)

	old := time.Now().Add(-time.Hour)
	rec := &task.ExecutionRecord{ID: "r1", TaskID: "t1", WorkerID: "w1", Usage: task.ResourceUsage{LastUpdate: old}}
	require.NoError(t, s.PutExecutionRecord(ctx, rec))
	tk := &task.Task{ID: "t1", Command: "x", State: task.StatusRunning, ExecutionDataID: "r1"}
	require.NoError(t, s.PutTask(ctx, tk))

	advanced, err := c.progressedSince(ctx, "w1", time.Now())
	require.NoError(t, err)
	require.False(t, advanced)
}

func TestProgressedSinceTrueForFreshUpdate(t *testing.T) {
	ctx := context.Background()
	c, s := newTestChecker(t)

	since := time.Now()
	rec := &task.ExecutionRecord{ID: "r1", TaskID: "t1", WorkerID: "w1", Usage: task.ResourceUsage{LastUpdate: since.Add(time.Second)}}
	require.NoError(t, s.PutExecutionRecord(ctx, rec))
	tk := &task.Task{ID: "t1", Command: "x", State: task.StatusRunning, ExecutionDataID: "r1"}
	require.NoError(t, s.PutTask(ctx, tk))

	advanced, err := c.progressedSince(ctx, "w1", since)
	require.NoError(t, err)
	require.True(t, advanced)
}
