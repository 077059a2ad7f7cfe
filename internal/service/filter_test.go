package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ldi/workforce/pkg/models"
)

func TestFetchByAssigneesAndWindow(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	const T = int64(1_700_000_000_000)

	withDeadline := func(ref, assignee, deadline int64) *models.Task {
		req := orderTask(ref, assignee, models.TaskTypeCreateInvoice)
		req.DeadlineTime = deadline
		return createTask(t, svc, req)
	}

	inside := withDeadline(1, 10, T-1000)
	withDeadline(2, 10, T+2000)
	atEnd := withDeadline(3, 11, T+1000)
	withDeadline(4, 12, T)
	justBefore := withDeadline(5, 10, T-1001)
	cancelled := withDeadline(6, 11, T)
	svc.UpdateStatus(ctx, cancelled.ID, models.TaskStatusCancelled, "")
	completed := withDeadline(7, 10, T)
	svc.UpdateStatus(ctx, completed.ID, models.TaskStatusStarted, "")
	svc.UpdateStatus(ctx, completed.ID, models.TaskStatusCompleted, "")

	tasks, err := svc.FetchByAssigneesAndWindow(ctx, []int64{10, 11}, T-1000, T+1000)
	if err != nil {
		t.Fatalf("FetchByAssigneesAndWindow failed: %v", err)
	}

	var ids []int64
	for _, task := range tasks {
		if task.Status == models.TaskStatusCancelled {
			t.Errorf("cancelled task %d returned", task.ID)
		}
		if task.ID == justBefore.ID {
			t.Errorf("task outside the window returned")
		}
		ids = append(ids, task.ID)
	}
	want := []int64{inside.ID, atEnd.ID, completed.ID}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: expected %d, got %d", i, want[i], ids[i])
		}
	}
}

func TestFetchByAssigneesAndWindowEdgeCases(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	createTask(t, svc, orderTask(1, 10, models.TaskTypeCreateInvoice))

	tasks, err := svc.FetchByAssigneesAndWindow(ctx, nil, 0, 1<<62)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("expected empty non-nil result, got %v", tasks)
	}

	if _, err := svc.FetchByAssigneesAndWindow(ctx, []int64{10}, 10, 9); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation for inverted window, got %v", err)
	}

	tasks, err = svc.FetchByAssigneesAndWindow(ctx, []int64{99}, 0, 1<<62)
	if err != nil || len(tasks) != 0 {
		t.Errorf("expected no tasks for unknown assignee, got %v (%v)", tasks, err)
	}
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		name     string
		status   models.TaskStatus
		deadline int64
		want     bool
	}{
		{"at start", models.TaskStatusAssigned, 100, true},
		{"at end", models.TaskStatusStarted, 200, true},
		{"inside", models.TaskStatusCompleted, 150, true},
		{"before", models.TaskStatusAssigned, 99, false},
		{"after", models.TaskStatusAssigned, 201, false},
		{"cancelled inside", models.TaskStatusCancelled, 150, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &models.Task{Status: tt.status, DeadlineTime: tt.deadline}
			if got := InWindow(task, 100, 200); got != tt.want {
				t.Errorf("InWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}
