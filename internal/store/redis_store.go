package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/banyan/banyan/internal/domain/task"
)

// Key prefixes for Banyan's Redis document store. One JSON document per
// logical id, stored whole under a plain string key; secondary lookups
// (name -> id, token -> id) and id sets (tasks, users, workers, a task's
// record ids) are separate keys pointing back at the primary id, following
// the same "string-per-document plus index keys" shape go-redis's own test
// suite (jordigilh-kubernaut's redis_deduplication_test.go) exercises
// against a real server.
const (
	prefixTask       = "banyan:task:"
	prefixTaskByName = "banyan:task_name:"
	prefixRecord     = "banyan:record:"
	prefixRecordsBy  = "banyan:task_records:" // set of record ids per task
	prefixUser       = "banyan:user:"
	prefixUserByName = "banyan:user_name:"
	prefixUserByTok  = "banyan:user_token:"
	prefixWorker     = "banyan:worker:"
	setAllUsers      = "banyan:users"
	setAllWorkers    = "banyan:workers"
	setAllTasks      = "banyan:tasks"
)

// RedisStore implements TaskStore against a Redis (or miniredis-in-test)
// server.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := s.getJSON(ctx, prefixTask+id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *RedisStore) GetTasks(ctx context.Context, ids []string) ([]*task.Task, error) {
	out := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTask(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PutTask writes t and maintains the name-uniqueness index
// (SPEC_FULL.md §4.3). A rename or create with a name already owned by a
// different task id fails with ErrDuplicateName.
func (s *RedisStore) PutTask(ctx context.Context, t *task.Task) error {
	if t.Name != "" {
		ownerID, err := s.rdb.Get(ctx, prefixTaskByName+t.Name).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("store: check name index: %w", err)
		}
		if err == nil && ownerID != t.ID {
			return ErrDuplicateName
		}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("store: marshal task: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, prefixTask+t.ID, data, 0)
	if t.Name != "" {
		pipe.Set(ctx, prefixTaskByName+t.Name, t.ID, 0)
	}
	pipe.SAdd(ctx, setAllTasks, t.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// ListTasks returns every task in the store, backing GET /tasks and the
// availability checker's worker-progress sweep (spec.md §4.7).
func (s *RedisStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	ids, err := s.rdb.SMembers(ctx, setAllTasks).Result()
	if err != nil {
		return nil, err
	}
	return s.GetTasks(ctx, ids)
}

func (s *RedisStore) FindTaskByName(ctx context.Context, name string) (*task.Task, error) {
	id, err := s.rdb.Get(ctx, prefixTaskByName+name).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

func (s *RedisStore) PutExecutionRecord(ctx context.Context, r *task.ExecutionRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: marshal execution record: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, prefixRecord+r.ID, data, 0)
	pipe.SAdd(ctx, prefixRecordsBy+r.TaskID, r.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetExecutionRecord(ctx context.Context, id string) (*task.ExecutionRecord, error) {
	var r task.ExecutionRecord
	if err := s.getJSON(ctx, prefixRecord+id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisStore) FindExecutionRecordsByTask(ctx context.Context, taskID string) ([]*task.ExecutionRecord, error) {
	ids, err := s.rdb.SMembers(ctx, prefixRecordsBy+taskID).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*task.ExecutionRecord, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetExecutionRecord(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisStore) PutUser(ctx context.Context, u *task.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("store: marshal user: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, prefixUser+u.ID, data, 0)
	pipe.Set(ctx, prefixUserByName+u.Name, u.ID, 0)
	if u.RequestToken != "" {
		pipe.Set(ctx, prefixUserByTok+u.RequestToken, u.ID, 0)
	}
	pipe.SAdd(ctx, setAllUsers, u.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetUser(ctx context.Context, id string) (*task.User, error) {
	var u task.User
	if err := s.getJSON(ctx, prefixUser+id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *RedisStore) FindUserByRequestToken(ctx context.Context, hashedToken string) (*task.User, error) {
	id, err := s.rdb.Get(ctx, prefixUserByTok+hashedToken).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *RedisStore) FindUserByName(ctx context.Context, name string) (*task.User, error) {
	id, err := s.rdb.Get(ctx, prefixUserByName+name).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *RedisStore) DeleteUser(ctx context.Context, id string) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, prefixUser+id)
	pipe.Del(ctx, prefixUserByName+u.Name)
	pipe.Del(ctx, prefixUserByTok+u.RequestToken)
	pipe.SRem(ctx, setAllUsers, id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListUsers(ctx context.Context) ([]*task.User, error) {
	ids, err := s.rdb.SMembers(ctx, setAllUsers).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*task.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.GetUser(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *RedisStore) PutWorker(ctx context.Context, w *task.RegisteredWorker) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("store: marshal worker: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, prefixWorker+w.WorkerID, data, 0)
	pipe.SAdd(ctx, setAllWorkers, w.WorkerID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetWorker(ctx context.Context, id string) (*task.RegisteredWorker, error) {
	var w task.RegisteredWorker
	if err := s.getJSON(ctx, prefixWorker+id, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *RedisStore) DeleteWorker(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, prefixWorker+id)
	pipe.SRem(ctx, setAllWorkers, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListWorkers(ctx context.Context) ([]*task.RegisteredWorker, error) {
	ids, err := s.rdb.SMembers(ctx, setAllWorkers).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*task.RegisteredWorker, 0, len(ids))
	for _, id := range ids {
		w, err := s.GetWorker(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
