package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ldi/workforce/pkg/models"
)

func TestAddComment(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	task := createTask(t, svc, orderTask(1, 5, models.TaskTypeCreateInvoice))

	if _, err := svc.AddComment(ctx, task.ID, "note", "alice"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	clock.Set(baseTime.Add(time.Second))
	got, err := svc.AddComment(ctx, task.ID, "second note", "")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}

	if len(got.Comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(got.Comments))
	}
	if got.Comments[0].Message != "note" || got.Comments[1].Message != "second note" {
		t.Errorf("comments out of order: %+v", got.Comments)
	}
	if got.Comments[0].Timestamp > got.Comments[1].Timestamp {
		t.Errorf("timestamps decreased: %d > %d", got.Comments[0].Timestamp, got.Comments[1].Timestamp)
	}
	if got.Comments[0].ID == "" || got.Comments[0].ID == got.Comments[1].ID {
		t.Errorf("expected distinct comment ids")
	}
	if len(got.ActivityHistory) != 1 {
		t.Errorf("comments must not add activity entries, got %d", len(got.ActivityHistory))
	}
}

func TestAddCommentClockSkew(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	task := createTask(t, svc, orderTask(1, 5, models.TaskTypeCreateInvoice))

	svc.AddComment(ctx, task.ID, "first", "")
	clock.Set(baseTime.Add(-time.Hour))
	got, err := svc.AddComment(ctx, task.ID, "second", "")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if got.Comments[1].Timestamp != baseTime.UnixMilli() {
		t.Errorf("expected clamped timestamp %d, got %d", baseTime.UnixMilli(), got.Comments[1].Timestamp)
	}
}

func TestAddCommentErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	task := createTask(t, svc, orderTask(1, 5, models.TaskTypeCreateInvoice))

	if _, err := svc.AddComment(ctx, task.ID, "   ", ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if _, err := svc.AddComment(ctx, 999, "note", ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCommentsAllowedOnTerminalTasks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	task := createTask(t, svc, orderTask(1, 5, models.TaskTypeCreateInvoice))
	svc.UpdateStatus(ctx, task.ID, models.TaskStatusCancelled, "")

	got, err := svc.AddComment(ctx, task.ID, "closed by customer", "ops")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if len(got.Comments) != 1 {
		t.Errorf("expected 1 comment, got %d", len(got.Comments))
	}
}

func TestRecordActivity(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	task := createTask(t, svc, orderTask(1, 5, models.TaskTypeCreateInvoice))

	if err := svc.RecordActivity(ctx, task.ID, "address", "a", "b", ""); err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if err := svc.RecordActivity(ctx, task.ID, "address", "b", "c", "sync"); err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}

	got, _ := st.Get(ctx, task.ID)
	if len(got.ActivityHistory) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got.ActivityHistory))
	}
	first, second := got.ActivityHistory[1], got.ActivityHistory[2]
	if first.Actor != models.SystemActor || first.NewValue != "b" {
		t.Errorf("unexpected entry: %+v", first)
	}
	if second.Actor != "sync" || second.OldValue != "b" || second.NewValue != "c" {
		t.Errorf("unexpected entry: %+v", second)
	}
	// Earlier entries are preserved verbatim.
	if got.ActivityHistory[0] != task.ActivityHistory[0] {
		t.Errorf("creation entry changed: %+v", got.ActivityHistory[0])
	}

	if err := svc.RecordActivity(ctx, task.ID, "", "a", "b", ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if err := svc.RecordActivity(ctx, 404, "field", "a", "b", ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
