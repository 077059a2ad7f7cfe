// Package storetest holds the behavior every store.Store implementation must
// share. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ldi/workforce/internal/store"
	"github.com/ldi/workforce/pkg/models"
)

// Run exercises s against the store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("IDsNeverReused", func(t *testing.T) { testIDsNeverReused(t, newStore(t)) })
	t.Run("Save", func(t *testing.T) { testSave(t, newStore(t)) })
	t.Run("SaveUnknown", func(t *testing.T) { testSaveUnknown(t, newStore(t)) })
	t.Run("Find", func(t *testing.T) { testFind(t, newStore(t)) })
	t.Run("Isolation", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("ConcurrentSave", func(t *testing.T) { testConcurrentSave(t, newStore(t)) })
}

// NewTask returns an ASSIGNED task with one creation entry.
func NewTask(refID int64, refType models.ReferenceType, taskType models.TaskType, assignee int64) *models.Task {
	return &models.Task{
		ReferenceID:   refID,
		ReferenceType: refType,
		TaskType:      taskType,
		Status:        models.TaskStatusAssigned,
		AssigneeID:    assignee,
		Priority:      models.PriorityMedium,
		DeadlineTime:  1000,
		Description:   "New task created.",
		ActivityHistory: []models.Activity{
			{ID: "a-create", Field: models.FieldTask, NewValue: "ASSIGNED", Actor: models.SystemActor, Timestamp: 1},
		},
	}
}

func mustCreate(t *testing.T, s store.Store, task *models.Task) *models.Task {
	t.Helper()
	created, err := s.Create(context.Background(), task)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return created
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	created := mustCreate(t, s, NewTask(10, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 5))
	if created.ID == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ReferenceID != 10 || got.TaskType != models.TaskTypeCreateInvoice || got.AssigneeID != 5 {
		t.Errorf("unexpected task: %+v", got)
	}
	if got.Status != models.TaskStatusAssigned || got.Priority != models.PriorityMedium || got.DeadlineTime != 1000 {
		t.Errorf("unexpected task: %+v", got)
	}
	if len(got.ActivityHistory) != 1 || got.ActivityHistory[0].ID != "a-create" {
		t.Errorf("unexpected history: %+v", got.ActivityHistory)
	}

	if _, err := s.Get(ctx, created.ID+100); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testIDsNeverReused(t *testing.T, s store.Store) {
	seen := make(map[int64]bool)
	var last int64
	for i := 0; i < 5; i++ {
		task := NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1)
		task.ID = 99 // ignored on create
		created := mustCreate(t, s, task)
		if seen[created.ID] {
			t.Fatalf("id %d reused", created.ID)
		}
		if created.ID <= last {
			t.Errorf("expected increasing ids, got %d after %d", created.ID, last)
		}
		seen[created.ID] = true
		last = created.ID
	}
}

func testSave(t *testing.T, s store.Store) {
	ctx := context.Background()
	created := mustCreate(t, s, NewTask(10, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 5))

	created.Status = models.TaskStatusStarted
	created.AssigneeID = 6
	created.Priority = models.PriorityHigh
	created.Description = "started"
	created.AppendActivity(models.Activity{ID: "a-start", Field: models.FieldStatus, OldValue: "ASSIGNED", NewValue: "STARTED", Actor: "bob", Timestamp: 2})
	created.AppendComment(models.Comment{ID: "c1", Message: "on the way", Author: "bob", Timestamp: 3})

	saved, err := s.Save(ctx, created)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.ID != created.ID {
		t.Errorf("Save changed id from %d to %d", created.ID, saved.ID)
	}

	got, _ := s.Get(ctx, created.ID)
	if got.Status != models.TaskStatusStarted || got.AssigneeID != 6 || got.Priority != models.PriorityHigh || got.Description != "started" {
		t.Errorf("update not persisted: %+v", got)
	}
	if len(got.ActivityHistory) != 2 || got.ActivityHistory[1].ID != "a-start" || got.ActivityHistory[1].Actor != "bob" {
		t.Errorf("unexpected history: %+v", got.ActivityHistory)
	}
	if len(got.Comments) != 1 || got.Comments[0].Message != "on the way" {
		t.Errorf("unexpected comments: %+v", got.Comments)
	}

	// Reassignment moves the task between assignee lookups.
	byOld, _ := s.FindByAssignees(ctx, []int64{5})
	byNew, _ := s.FindByAssignees(ctx, []int64{6})
	if len(byOld) != 0 || len(byNew) != 1 {
		t.Errorf("assignee lookup not updated: old=%d new=%d", len(byOld), len(byNew))
	}

	fresh := NewTask(11, models.ReferenceTypeEntity, models.TaskTypeAssignCustomerToSalesPerson, 7)
	viaSave, err := s.Save(ctx, fresh)
	if err != nil {
		t.Fatalf("Save of new task failed: %v", err)
	}
	if viaSave.ID == 0 || viaSave.ID == created.ID {
		t.Errorf("expected a fresh id, got %d", viaSave.ID)
	}
}

func testSaveUnknown(t *testing.T, s store.Store) {
	task := NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1)
	task.ID = 12345
	if _, err := s.Save(context.Background(), task); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testFind(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, NewTask(10, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1))
	b := mustCreate(t, s, NewTask(10, models.ReferenceTypeOrder, models.TaskTypeArrangePickup, 2))
	c := mustCreate(t, s, NewTask(10, models.ReferenceTypeEntity, models.TaskTypeAssignCustomerToSalesPerson, 1))
	d := mustCreate(t, s, NewTask(11, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 3))

	all, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	assertIDs(t, "FindAll", all, a.ID, b.ID, c.ID, d.ID)

	byRef, err := s.FindByReference(ctx, 10, models.ReferenceTypeOrder)
	if err != nil {
		t.Fatalf("FindByReference failed: %v", err)
	}
	assertIDs(t, "FindByReference", byRef, a.ID, b.ID)

	none, err := s.FindByReference(ctx, 99, models.ReferenceTypeOrder)
	if err != nil || len(none) != 0 {
		t.Errorf("expected no tasks, got %v (%v)", none, err)
	}

	byRefID, err := s.FindByReferenceID(ctx, 10)
	if err != nil {
		t.Fatalf("FindByReferenceID failed: %v", err)
	}
	assertIDs(t, "FindByReferenceID", byRefID, a.ID, b.ID, c.ID)

	byAssignee, err := s.FindByAssignees(ctx, []int64{1, 3})
	if err != nil {
		t.Fatalf("FindByAssignees failed: %v", err)
	}
	assertIDs(t, "FindByAssignees", byAssignee, a.ID, c.ID, d.ID)

	empty, err := s.FindByAssignees(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected no tasks for empty assignee set, got %v (%v)", empty, err)
	}
}

func testIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	input := NewTask(10, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1)
	created := mustCreate(t, s, input)

	input.Status = models.TaskStatusCancelled
	input.ActivityHistory[0].Actor = "intruder"
	created.ActivityHistory[0].NewValue = "tampered"
	created.Comments = append(created.Comments, models.Comment{ID: "x"})

	got, _ := s.Get(ctx, created.ID)
	if got.Status != models.TaskStatusAssigned {
		t.Errorf("stored status changed through caller copy: %s", got.Status)
	}
	if got.ActivityHistory[0].Actor != models.SystemActor || got.ActivityHistory[0].NewValue != "ASSIGNED" {
		t.Errorf("stored history changed through caller copy: %+v", got.ActivityHistory[0])
	}
	if len(got.Comments) != 0 {
		t.Errorf("stored comments changed through caller copy: %+v", got.Comments)
	}
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	const n = 50
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(assignee int64) {
			defer wg.Done()
			created, err := s.Create(context.Background(), NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, assignee))
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			ids <- created.ID
		}(int64(i))
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d ids, got %d", n, len(seen))
	}
}

// testConcurrentSave races whole-record saves of one id. Each writer sets
// the description and assignee as a pair and appends one activity entry; the
// stored record must match exactly one writer.
func testConcurrentSave(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := mustCreate(t, s, NewTask(20, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1))

	const n = 8
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(writer int64) {
			defer wg.Done()
			task := base.Clone()
			task.Status = models.TaskStatusStarted
			task.AssigneeID = 100 + writer
			task.Description = fmt.Sprintf("writer-%d", writer)
			task.AppendActivity(models.Activity{
				ID: fmt.Sprintf("a-%d", writer), Field: models.FieldStatus,
				OldValue: "ASSIGNED", NewValue: "STARTED", Actor: task.Description, Timestamp: 2,
			})
			if _, err := s.Save(ctx, task); err != nil {
				t.Errorf("Save by writer %d failed: %v", writer, err)
			}
		}(int64(i))
	}
	wg.Wait()

	got, err := s.Get(ctx, base.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.TaskStatusStarted {
		t.Errorf("expected STARTED, got %s", got.Status)
	}
	if want := fmt.Sprintf("writer-%d", got.AssigneeID-100); got.Description != want {
		t.Errorf("fields from different writers: assignee %d with description %q", got.AssigneeID, got.Description)
	}
	if len(got.ActivityHistory) != len(base.ActivityHistory)+1 {
		t.Fatalf("expected %d activity entries, got %d", len(base.ActivityHistory)+1, len(got.ActivityHistory))
	}
	if got.ActivityHistory[0].ID != base.ActivityHistory[0].ID {
		t.Errorf("existing history rewritten: %+v", got.ActivityHistory[0])
	}

	// Exactly one assignee index holds the task.
	var holders int
	for i := int64(1); i <= n; i++ {
		tasks, err := s.FindByAssignees(ctx, []int64{100 + i})
		if err != nil {
			t.Fatalf("FindByAssignees failed: %v", err)
		}
		holders += len(tasks)
	}
	if stale, _ := s.FindByAssignees(ctx, []int64{1}); len(stale) != 0 {
		t.Errorf("task still listed under its original assignee")
	}
	if holders != 1 {
		t.Errorf("expected the task under one assignee, found %d", holders)
	}
}

func assertIDs(t *testing.T, name string, tasks []*models.Task, want ...int64) {
	t.Helper()
	if len(tasks) != len(want) {
		t.Fatalf("%s: expected %d tasks, got %d", name, len(want), len(tasks))
	}
	for i, task := range tasks {
		if task.ID != want[i] {
			t.Errorf("%s: position %d: expected id %d, got %d", name, i, want[i], task.ID)
		}
	}
}
