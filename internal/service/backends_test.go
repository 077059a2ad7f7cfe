package service

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ldi/workforce/internal/db"
	"github.com/ldi/workforce/internal/store"
	"github.com/ldi/workforce/pkg/models"
	"github.com/redis/go-redis/v9"
)

// storeBackends returns a constructor for every store implementation.
func storeBackends() map[string]func(t *testing.T) store.Store {
	return map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store {
			return store.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) store.Store {
			database, err := db.Open(":memory:")
			if err != nil {
				t.Fatalf("Failed to open database: %v", err)
			}
			t.Cleanup(func() { database.Close() })
			if err := database.Init(context.Background()); err != nil {
				t.Fatalf("Failed to init database: %v", err)
			}
			return database
		},
		"redis": func(t *testing.T) store.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			st := store.NewRedisStoreFromClient(client, "test:")
			t.Cleanup(func() { st.Close() })
			return st
		},
	}
}

func TestReconciliationOnEveryStore(t *testing.T) {
	for name, newStore := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			st := newStore(t)
			clock := &testClock{now: baseTime}
			svc := New(st, Options{Clock: clock.Now})
			ctx := context.Background()

			original := createTask(t, svc, CreateTaskRequest{
				ReferenceID:   201,
				ReferenceType: models.ReferenceTypeEntity,
				TaskType:      models.TaskTypeAssignCustomerToSalesPerson,
				AssigneeID:    1,
			})

			summary, err := svc.AssignByReference(ctx, AssignByReferenceRequest{
				ReferenceID: 201, ReferenceType: models.ReferenceTypeEntity, AssigneeID: 5,
			})
			if err != nil {
				t.Fatalf("AssignByReference failed: %v", err)
			}
			if len(summary.CancelledTaskIDs) != 1 || summary.CancelledTaskIDs[0] != original.ID {
				t.Errorf("expected task %d cancelled, got %v", original.ID, summary.CancelledTaskIDs)
			}

			cancelled, err := st.Get(ctx, original.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if cancelled.Status != models.TaskStatusCancelled || cancelled.Description != DescriptionCancelled {
				t.Errorf("original not cancelled: %+v", cancelled)
			}
			if len(cancelled.ActivityHistory) != 2 {
				t.Errorf("expected creation and cancellation entries, got %+v", cancelled.ActivityHistory)
			}

			tasks, err := svc.GetByReference(ctx, 201)
			if err != nil {
				t.Fatalf("GetByReference failed: %v", err)
			}
			if len(tasks) != 2 || tasks[0].ID != original.ID {
				t.Fatalf("expected original plus one new task, got %d tasks", len(tasks))
			}
			if tasks[1].Status != models.TaskStatusAssigned || tasks[1].AssigneeID != 5 {
				t.Errorf("unexpected new task: %+v", tasks[1])
			}

			previous := len(tasks)
			for i := int64(6); i <= 8; i++ {
				if _, err := svc.AssignByReference(ctx, AssignByReferenceRequest{
					ReferenceID: 201, ReferenceType: models.ReferenceTypeEntity, AssigneeID: i,
				}); err != nil {
					t.Fatalf("AssignByReference %d failed: %v", i, err)
				}
				tasks, err := st.FindByReference(ctx, 201, models.ReferenceTypeEntity)
				if err != nil {
					t.Fatalf("FindByReference failed: %v", err)
				}
				if len(tasks) < previous {
					t.Fatalf("task count decreased from %d to %d", previous, len(tasks))
				}
				previous = len(tasks)
				active := activeByType(tasks)[models.TaskTypeAssignCustomerToSalesPerson]
				if len(active) != 1 || active[0].AssigneeID != i {
					t.Fatalf("round %d: unexpected active tasks %+v", i, active)
				}
			}
		})
	}
}

func TestConcurrentReconciliationOnEveryStore(t *testing.T) {
	for name, newStore := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			st := newStore(t)
			svc := New(st, Options{})
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := int64(1); i <= 10; i++ {
				wg.Add(1)
				go func(assignee int64) {
					defer wg.Done()
					if _, err := svc.AssignByReference(ctx, AssignByReferenceRequest{
						ReferenceID: 600, ReferenceType: models.ReferenceTypeOrder, AssigneeID: assignee,
					}); err != nil {
						t.Errorf("AssignByReference failed: %v", err)
					}
				}(i)
			}
			wg.Wait()

			tasks, err := st.FindByReference(ctx, 600, models.ReferenceTypeOrder)
			if err != nil {
				t.Fatalf("FindByReference failed: %v", err)
			}
			if len(tasks) != 30 {
				t.Errorf("expected 30 tasks, got %d", len(tasks))
			}
			active := activeByType(tasks)
			if len(active) != 3 {
				t.Fatalf("expected active tasks for 3 types, got %d", len(active))
			}
			for taskType, ts := range active {
				if len(ts) != 1 {
					t.Errorf("%d active %s tasks", len(ts), taskType)
				}
			}
		})
	}
}
