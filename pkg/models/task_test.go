package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		wantErr  error
	}{
		{TaskStatusAssigned, TaskStatusStarted, nil},
		{TaskStatusAssigned, TaskStatusCancelled, nil},
		{TaskStatusAssigned, TaskStatusCompleted, ErrInvalidTransition},
		{TaskStatusAssigned, TaskStatusAssigned, nil},
		{TaskStatusStarted, TaskStatusCompleted, nil},
		{TaskStatusStarted, TaskStatusCancelled, nil},
		{TaskStatusStarted, TaskStatusAssigned, ErrInvalidTransition},
		{TaskStatusCompleted, TaskStatusStarted, ErrInvalidTransition},
		{TaskStatusCompleted, TaskStatusCancelled, ErrInvalidTransition},
		{TaskStatusCompleted, TaskStatusAssigned, ErrInvalidTransition},
		{TaskStatusCancelled, TaskStatusAssigned, ErrInvalidTransition},
		{TaskStatusCancelled, TaskStatusStarted, ErrInvalidTransition},
		{TaskStatusCancelled, TaskStatusCompleted, ErrInvalidTransition},
		{TaskStatusAssigned, "DONE", ErrValidation},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []TaskStatus{TaskStatusCompleted, TaskStatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TaskStatus{TaskStatusAssigned, TaskStatusStarted} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !(&Task{Status: s}).IsActive() {
			t.Errorf("task in %s should be active", s)
		}
	}
	if TaskStatus("assigned").IsValid() {
		t.Error("status values are case-sensitive")
	}
	if !PriorityLow.IsValid() || Priority("URGENT").IsValid() {
		t.Error("unexpected priority validity")
	}
	if !ReferenceTypeEntity.IsValid() || ReferenceType("INVOICE").IsValid() {
		t.Error("unexpected reference type validity")
	}
	if !TaskTypeCollectPayment.IsValid() || TaskType("SHIP").IsValid() {
		t.Error("unexpected task type validity")
	}
}

func TestClone(t *testing.T) {
	orig := &Task{
		ID:              1,
		Status:          TaskStatusAssigned,
		ActivityHistory: []Activity{{ID: "a1", Field: FieldTask}},
		Comments:        []Comment{{ID: "c1", Message: "hi"}},
	}

	c := orig.Clone()
	c.Status = TaskStatusStarted
	c.ActivityHistory[0].Field = "changed"
	c.AppendActivity(Activity{ID: "a2"})
	c.Comments[0].Message = "changed"

	if orig.Status != TaskStatusAssigned {
		t.Error("clone shares scalar fields")
	}
	if orig.ActivityHistory[0].Field != FieldTask || len(orig.ActivityHistory) != 1 {
		t.Error("clone shares activity history")
	}
	if orig.Comments[0].Message != "hi" {
		t.Error("clone shares comments")
	}

	var nilTask *Task
	if nilTask.Clone() != nil {
		t.Error("expected nil clone of nil task")
	}
}

func TestBatchError(t *testing.T) {
	err := error(&BatchError{Failures: []*ItemError{
		{Index: 0, TaskID: 3, Err: fmt.Errorf("task 3: %w", ErrNotFound)},
		{Index: 2, Err: fmt.Errorf("%w: bad priority", ErrValidation)},
	}})

	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrValidation) {
		t.Errorf("expected both sentinels reachable, got %v", err)
	}
	if errors.Is(err, ErrInvalidTransition) {
		t.Error("unexpected ErrInvalidTransition match")
	}

	want := "2 item(s) failed: item 0 (task 3): task 3: not found; item 2: validation failed: bad priority"
	if err.Error() != want {
		t.Errorf("unexpected message:\n got %q\nwant %q", err.Error(), want)
	}

	var item *ItemError
	if !errors.As(err, &item) || item.Index != 0 {
		t.Errorf("expected first ItemError, got %+v", item)
	}
}
