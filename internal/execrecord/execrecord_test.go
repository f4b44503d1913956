package execrecord

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
	cfg := &config.Config{TokenLen: config.DefaultTokenLen, MaxContSize: config.DefaultMaxContSize, MaxUpdates: config.DefaultMaxUpdates}
	contEng := continuation.New(s, cfg, logx.New("test"))
	return New(s, contEng, cfg, logx.New("test")), s
}

func TestClaimMintsTokenAndRecord(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tk := &task.Task{ID: "t1", Command: "x", State: task.StatusAvailable, MaxAttemptCount: 3}
	require.NoError(t, s.PutTask(ctx, tk))

	rec, err := eng.Claim(ctx, tk, "worker-1")
	require.NoError(t, err)
	require.Len(t, rec.Token, config.DefaultTokenLen)
	require.NotContains(t, rec.Token, ":")
	require.Equal(t, 1, rec.AttemptCount)
	require.Equal(t, task.StatusRunning, tk.State)
	require.Equal(t, rec.ID, tk.ExecutionDataID)
	require.Equal(t, 1, tk.AttemptCount)
}

func TestClaimRejectsExhaustedAttempts(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tk := &task.Task{ID: "t1", Command: "x", State: task.StatusAvailable, MaxAttemptCount: 1, AttemptCount: 1}
	require.NoError(t, s.PutTask(ctx, tk))

	_, err := eng.Claim(ctx, tk, "worker-1")
	require.Error(t, err)
}

func TestReportRejectsWrongToken(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tk := &task.Task{ID: "t1", Command: "x", State: task.StatusAvailable, MaxAttemptCount: 3}
	require.NoError(t, s.PutTask(ctx, tk))
	_, err := eng.Claim(ctx, tk, "worker-1")
	require.NoError(t, err)

	err = eng.Report(ctx, tk, ReportInput{Token: "garbage", ExitStatus: task.ExitSuccess, TimeTerminated: time.Now()})
	require.Error(t, err)
}

func TestReportSuccessReleasesContinuations(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	child := &task.Task{ID: "c", Command: "y", State: task.StatusInactive, PendingDependencyCount: 1}
	parent := &task.Task{ID: "t1", Command: "x", State: task.StatusAvailable, MaxAttemptCount: 3, Continuations: []string{"c"}}
	require.NoError(t, s.PutTask(ctx, child))
	require.NoError(t, s.PutTask(ctx, parent))

	rec, err := eng.Claim(ctx, parent, "worker-1")
	require.NoError(t, err)

	err = eng.Report(ctx, parent, ReportInput{Token: rec.Token, ExitStatus: task.ExitSuccess, TimeTerminated: time.Now()})
	require.NoError(t, err)
	require.Equal(t, task.StatusTerminated, parent.State)

	gotChild, err := s.GetTask(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, task.StatusAvailable, gotChild.State)
}

func TestReportFailureRetriesWithFreshToken(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tk := &task.Task{ID: "t1", Command: "x", State: task.StatusAvailable, MaxAttemptCount: 3}
	require.NoError(t, s.PutTask(ctx, tk))

	rec1, err := eng.Claim(ctx, tk, "worker-1")
	require.NoError(t, err)

	err = eng.Report(ctx, tk, ReportInput{Token: rec1.Token, ExitStatus: task.ExitFailure, TimeTerminated: time.Now()})
	require.NoError(t, err)
	require.Equal(t, task.StatusAvailable, tk.State)
	require.Equal(t, 1, tk.AttemptCount)

	rec2, err := s.GetExecutionRecord(ctx, tk.ExecutionDataID)
	require.NoError(t, err)
	require.NotEqual(t, rec1.Token, rec2.Token)
	require.Equal(t, 2, rec2.AttemptCount)
}

func TestReportFailureExhaustedCancelsSubtree(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	child := &task.Task{ID: "c", State: task.StatusInactive, PendingDependencyCount: 1}
	parent := &task.Task{ID: "t1", Command: "x", State: task.StatusAvailable, MaxAttemptCount: 1, Continuations: []string{"c"}}
	require.NoError(t, s.PutTask(ctx, child))
	require.NoError(t, s.PutTask(ctx, parent))

	rec, err := eng.Claim(ctx, parent, "worker-1")
	require.NoError(t, err)

	err = eng.Report(ctx, parent, ReportInput{Token: rec.Token, ExitStatus: task.ExitFailure, TimeTerminated: time.Now()})
	require.NoError(t, err)
	require.Equal(t, task.StatusTerminated, parent.State)

	gotChild, err := s.GetTask(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, task.StatusCancelled, gotChild.State)
}

func TestUpdateUsageIsTokenGated(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tk := &task.Task{ID: "t1", Command: "x", State: task.StatusAvailable, MaxAttemptCount: 3}
	require.NoError(t, s.PutTask(ctx, tk))
	rec, err := eng.Claim(ctx, tk, "worker-1")
	require.NoError(t, err)

	require.Error(t, eng.UpdateUsage(ctx, tk, "bad-token", task.ResourceUsage{MemoryBytes: 1024}))
	require.NoError(t, eng.UpdateUsage(ctx, tk, rec.Token, task.ResourceUsage{MemoryBytes: 1024}))

	got, err := s.GetExecutionRecord(ctx, tk.ExecutionDataID)
	require.NoError(t, err)
	require.Equal(t, int64(1024), got.Usage.MemoryBytes)
}
