package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ldi/workforce/pkg/models"
)

// MemoryStore keeps tasks in a mutex-guarded map. Records are cloned on the
// way in and out so no caller holds a reference to stored state.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[int64]*models.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[int64]*models.Task),
	}
}

func (s *MemoryStore) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", models.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored := t.Clone()
	stored.ID = s.nextID
	s.tasks[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", models.ErrValidation)
	}
	if t.ID == 0 {
		return s.Create(ctx, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		return nil, fmt.Errorf("task %d: %w", t.ID, models.ErrNotFound)
	}
	stored := t.Clone()
	s.tasks[t.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) FindAll(ctx context.Context) ([]*models.Task, error) {
	return s.scan(func(*models.Task) bool { return true }), nil
}

func (s *MemoryStore) FindByReference(ctx context.Context, referenceID int64, referenceType models.ReferenceType) ([]*models.Task, error) {
	return s.scan(func(t *models.Task) bool {
		return t.ReferenceID == referenceID && t.ReferenceType == referenceType
	}), nil
}

func (s *MemoryStore) FindByReferenceID(ctx context.Context, referenceID int64) ([]*models.Task, error) {
	return s.scan(func(t *models.Task) bool { return t.ReferenceID == referenceID }), nil
}

func (s *MemoryStore) FindByAssignees(ctx context.Context, assigneeIDs []int64) ([]*models.Task, error) {
	if len(assigneeIDs) == 0 {
		return nil, nil
	}
	ids := make(map[int64]struct{}, len(assigneeIDs))
	for _, id := range assigneeIDs {
		ids[id] = struct{}{}
	}
	return s.scan(func(t *models.Task) bool {
		_, ok := ids[t.AssigneeID]
		return ok
	}), nil
}

// scan returns clones of matching tasks ordered by id.
func (s *MemoryStore) scan(match func(*models.Task) bool) []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*models.Task
	for _, t := range s.tasks {
		if match(t) {
			tasks = append(tasks, t.Clone())
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}
