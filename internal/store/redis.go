package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/ldi/workforce/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "workforce:"
	maxSaveRetries   = 10
)

// RedisStore keeps each task as a JSON value plus index sets for reference
// and assignee lookups. Ids come from an INCR sequence, so they are never
// reused; saves use WATCH/MULTI so index updates commit with the record.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type RedisOptions struct {
	Addr      string
	KeyPrefix string
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: opts.Addr}), opts.KeyPrefix)
}

func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks that the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) seqKey() string { return s.prefix + "task:seq" }
func (s *RedisStore) allKey() string { return s.prefix + "tasks" }

func (s *RedisStore) taskKey(id int64) string {
	return fmt.Sprintf("%stask:%d", s.prefix, id)
}

func (s *RedisStore) referenceKey(referenceID int64, referenceType models.ReferenceType) string {
	return fmt.Sprintf("%sref:%s:%d", s.prefix, referenceType, referenceID)
}

func (s *RedisStore) assigneeKey(assigneeID int64) string {
	return fmt.Sprintf("%sassignee:%d", s.prefix, assigneeID)
}

func (s *RedisStore) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", models.ErrValidation)
	}

	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate task id: %w", err)
	}

	stored := t.Clone()
	stored.ID = id
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	member := strconv.FormatInt(id, 10)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.taskKey(id), data, 0)
		pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: float64(id), Member: member})
		pipe.SAdd(ctx, s.referenceKey(stored.ReferenceID, stored.ReferenceType), member)
		pipe.SAdd(ctx, s.assigneeKey(stored.AssigneeID), member)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return stored, nil
}

func (s *RedisStore) Get(ctx context.Context, id int64) (*models.Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return decodeTask(data)
}

func (s *RedisStore) Save(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", models.ErrValidation)
	}
	if t.ID == 0 {
		return s.Create(ctx, t)
	}

	stored := t.Clone()
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	key := s.taskKey(t.ID)
	member := strconv.FormatInt(t.ID, 10)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("task %d: %w", t.ID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		old, err := decodeTask(raw)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if old.AssigneeID != stored.AssigneeID {
				pipe.SRem(ctx, s.assigneeKey(old.AssigneeID), member)
				pipe.SAdd(ctx, s.assigneeKey(stored.AssigneeID), member)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxSaveRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save task: %w", err)
		}
		return stored, nil
	}

	return nil, fmt.Errorf("failed to save task %d: too much contention", t.ID)
}

func (s *RedisStore) FindAll(ctx context.Context) ([]*models.Task, error) {
	members, err := s.client.ZRange(ctx, s.allKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return s.load(ctx, members)
}

func (s *RedisStore) FindByReference(ctx context.Context, referenceID int64, referenceType models.ReferenceType) ([]*models.Task, error) {
	members, err := s.client.SMembers(ctx, s.referenceKey(referenceID, referenceType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by reference: %w", err)
	}
	return s.load(ctx, members)
}

func (s *RedisStore) FindByReferenceID(ctx context.Context, referenceID int64) ([]*models.Task, error) {
	types := models.ReferenceTypes()
	keys := make([]string, 0, len(types))
	for _, rt := range types {
		keys = append(keys, s.referenceKey(referenceID, rt))
	}
	members, err := s.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by reference: %w", err)
	}
	return s.load(ctx, members)
}

func (s *RedisStore) FindByAssignees(ctx context.Context, assigneeIDs []int64) ([]*models.Task, error) {
	if len(assigneeIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(assigneeIDs))
	for _, id := range assigneeIDs {
		keys = append(keys, s.assigneeKey(id))
	}
	members, err := s.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by assignee: %w", err)
	}
	tasks, err := s.load(ctx, members)
	if err != nil {
		return nil, err
	}

	// Index sets may briefly lag a concurrent reassignment; filter on the record.
	wanted := make(map[int64]struct{}, len(assigneeIDs))
	for _, id := range assigneeIDs {
		wanted[id] = struct{}{}
	}
	filtered := tasks[:0]
	for _, t := range tasks {
		if _, ok := wanted[t.AssigneeID]; ok {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// load fetches the given ids with a single MGET and returns them ordered by id.
func (s *RedisStore) load(ctx context.Context, members []string) ([]*models.Task, error) {
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid task id %q in index: %w", m, err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.taskKey(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	tasks := make([]*models.Task, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		t, err := decodeTask([]byte(str))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func decodeTask(data []byte) (*models.Task, error) {
	var t models.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &t, nil
}
