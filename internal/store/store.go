// Package store defines Banyan's document-store adapter boundary and a
// Redis-backed implementation of it.
//
// spec.md frames the backing technology as an arbitrary "document store"
// offering typed find/update-by-id plus field-level mutation
// (inc/set/push/pull/addToSet). SPEC_FULL.md §2.1 grounds that abstraction
// on Redis (go-redis/v9, found throughout the pack): one JSON document per
// key, fetched whole, mutated on the Go side by the engine that owns the
// field in question, and written back with a single Set. The only Redis
// primitives this store uses natively are its secondary indexes — SAdd/
// SRem/SMembers for the id sets (tasks, users, workers, a task's record
// ids) and plain Get/Set for the name/token lookup keys — wrapped in a
// TxPipeline (MULTI/EXEC) when a write touches more than one key. Field
// mutation is not atomic at the Redis level; correctness instead comes
// from every multi-step mutation running under lock.Registry's
// task_lock/worker_registry_lock, which serializes the read-modify-write
// cycle at the Go level.
package store

import (
	"context"
	"errors"

	"github.com/banyan/banyan/internal/domain/task"
)

// ErrNotFound is returned by Get/GetExecutionRecord/GetUser/GetWorker when
// no document exists for the given id.
var ErrNotFound = errors.New("store: document not found")

// ErrDuplicateName is returned by PutTask when name uniqueness (SPEC_FULL.md
// §4.3) is violated.
var ErrDuplicateName = errors.New("store: duplicate task name")

// TaskStore is the task-graph persistence boundary. Every method that
// mutates more than one task (cancel recursion, bulk continuation updates)
// is expected to be called while the caller holds lock.TaskLock — the
// store itself does not serialize concurrent callers beyond what Redis's
// own per-command atomicity provides.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*task.Task, error)
	GetTasks(ctx context.Context, ids []string) ([]*task.Task, error)
	PutTask(ctx context.Context, t *task.Task) error
	FindTaskByName(ctx context.Context, name string) (*task.Task, error)
	ListTasks(ctx context.Context) ([]*task.Task, error)

	PutExecutionRecord(ctx context.Context, r *task.ExecutionRecord) error
	GetExecutionRecord(ctx context.Context, id string) (*task.ExecutionRecord, error)
	FindExecutionRecordsByTask(ctx context.Context, taskID string) ([]*task.ExecutionRecord, error)

	PutUser(ctx context.Context, u *task.User) error
	GetUser(ctx context.Context, id string) (*task.User, error)
	FindUserByRequestToken(ctx context.Context, hashedToken string) (*task.User, error)
	FindUserByName(ctx context.Context, name string) (*task.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*task.User, error)

	PutWorker(ctx context.Context, w *task.RegisteredWorker) error
	GetWorker(ctx context.Context, id string) (*task.RegisteredWorker, error)
	DeleteWorker(ctx context.Context, id string) error
	ListWorkers(ctx context.Context) ([]*task.RegisteredWorker, error)
}
