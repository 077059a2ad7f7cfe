package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ldi/workforce/internal/store"
	"github.com/ldi/workforce/internal/store/storetest"
	"github.com/ldi/workforce/pkg/models"
)

var _ store.Store = (*DB)(nil)

func setupDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	return db
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return setupDB(t)
	})
}

func TestSaveRejectsDroppedHistory(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	created, err := db.Create(ctx, storetest.NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	created.ActivityHistory = nil
	created.Status = models.TaskStatusStarted
	if _, err := db.Save(ctx, created); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	// The failed save rolled back as a whole.
	got, _ := db.Get(ctx, created.ID)
	if got.Status != models.TaskStatusAssigned || len(got.ActivityHistory) != 1 {
		t.Errorf("failed save left partial changes: %+v", got)
	}
}

func TestHistoryRowsAreImmutable(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	created, err := db.Create(ctx, storetest.NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	created.AppendComment(models.Comment{ID: "c1", Message: "hello", Timestamp: 1})
	if _, err := db.Save(ctx, created); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	statements := []string{
		"UPDATE task_activities SET actor = 'someone' WHERE task_id = ?",
		"DELETE FROM task_activities WHERE task_id = ?",
		"UPDATE task_comments SET message = 'edited' WHERE task_id = ?",
		"DELETE FROM tasks WHERE id = ?",
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt, created.ID); err == nil {
			t.Errorf("expected %q to be rejected", stmt)
		}
	}

	got, _ := db.Get(ctx, created.ID)
	if got.ActivityHistory[0].Actor != models.SystemActor || got.Comments[0].Message != "hello" {
		t.Errorf("history changed: %+v", got)
	}
}

func TestIDsNotReusedAfterDelete(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	first, err := db.Create(ctx, storetest.NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Bypass the delete guard to check the id sequence itself.
	for _, stmt := range []string{
		"DROP TRIGGER trg_tasks_no_delete",
		"DROP TRIGGER trg_task_activities_no_delete",
		"DELETE FROM task_activities",
		"DELETE FROM tasks",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("%s failed: %v", stmt, err)
		}
	}

	second, err := db.Create(ctx, storetest.NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("id %d reused after delete (first was %d)", second.ID, first.ID)
	}
}

func TestInvalidValuesRejected(t *testing.T) {
	db := setupDB(t)
	task := storetest.NewTask(1, models.ReferenceTypeOrder, models.TaskTypeCreateInvoice, 1)
	task.Status = "PAUSED"
	if _, err := db.Create(context.Background(), task); err == nil {
		t.Error("expected CHECK constraint to reject unknown status")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workforce.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	created, err := db.Create(ctx, storetest.NewTask(7, models.ReferenceTypeEntity, models.TaskTypeAssignCustomerToSalesPerson, 3))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()
	if err := db.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	got, err := db.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ReferenceID != 7 || len(got.ActivityHistory) != 1 {
		t.Errorf("unexpected task after reopen: %+v", got)
	}
}

func TestScansBeyondParameterLimit(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	const n = 33000
	_, err := db.ExecContext(ctx, `
		WITH RECURSIVE seq(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM seq WHERE n < ?)
		INSERT INTO tasks (reference_id, reference_type, task_type, status, assignee_id, priority, deadline_time, description)
		SELECT n % 100, 'ORDER', 'CREATE_INVOICE', 'ASSIGNED', n, 'MEDIUM', 1000, 'seeded' FROM seq
	`, n)
	if err != nil {
		t.Fatalf("Failed to seed tasks: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO task_activities (task_id, seq, id, field, old_value, new_value, actor, timestamp)
		VALUES (?, 0, 'a-last', 'task', '', 'ASSIGNED', 'system', 1)
	`, n)
	if err != nil {
		t.Fatalf("Failed to seed activity: %v", err)
	}

	all, err := db.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d tasks, got %d", n, len(all))
	}
	last := all[n-1]
	if last.ID != n || len(last.ActivityHistory) != 1 || last.ActivityHistory[0].ID != "a-last" {
		t.Errorf("history of the last task not loaded: %+v", last)
	}

	assignees := make([]int64, n)
	for i := range assignees {
		assignees[i] = int64(i + 1)
	}
	byAssignee, err := db.FindByAssignees(ctx, assignees)
	if err != nil {
		t.Fatalf("FindByAssignees failed: %v", err)
	}
	if len(byAssignee) != n {
		t.Errorf("expected %d tasks, got %d", n, len(byAssignee))
	}

	byRef, err := db.FindByReferenceID(ctx, 7)
	if err != nil {
		t.Fatalf("FindByReferenceID failed: %v", err)
	}
	if len(byRef) != n/100 {
		t.Errorf("expected %d tasks for reference 7, got %d", n/100, len(byRef))
	}
}
