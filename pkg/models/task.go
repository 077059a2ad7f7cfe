package models

import "fmt"

type TaskStatus string

const (
	TaskStatusAssigned  TaskStatus = "ASSIGNED"
	TaskStatusStarted   TaskStatus = "STARTED"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusAssigned, TaskStatusStarted, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

type ReferenceType string

const (
	ReferenceTypeOrder  ReferenceType = "ORDER"
	ReferenceTypeEntity ReferenceType = "ENTITY"
)

// ReferenceTypes returns every known reference type.
func ReferenceTypes() []ReferenceType {
	return []ReferenceType{ReferenceTypeOrder, ReferenceTypeEntity}
}

func (r ReferenceType) IsValid() bool {
	switch r {
	case ReferenceTypeOrder, ReferenceTypeEntity:
		return true
	default:
		return false
	}
}

type TaskType string

const (
	TaskTypeCreateInvoice               TaskType = "CREATE_INVOICE"
	TaskTypeArrangePickup               TaskType = "ARRANGE_PICKUP"
	TaskTypeCollectPayment              TaskType = "COLLECT_PAYMENT"
	TaskTypeAssignCustomerToSalesPerson TaskType = "ASSIGN_CUSTOMER_TO_SALES_PERSON"
)

func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeCreateInvoice, TaskTypeArrangePickup, TaskTypeCollectPayment, TaskTypeAssignCustomerToSalesPerson:
		return true
	default:
		return false
	}
}

// Fields tracked in a task's activity history.
const (
	FieldTask     = "task"
	FieldStatus   = "status"
	FieldPriority = "priority"
	FieldAssignee = "assignee"
)

// SystemActor is recorded when a change has no explicit actor.
const SystemActor = "system"

// Activity is a single immutable entry in a task's history.
type Activity struct {
	ID        string `json:"id"`
	Field     string `json:"field"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	Actor     string `json:"actor"`
	Timestamp int64  `json:"timestamp"`
}

type Comment struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Author    string `json:"author,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Task is a unit of work generated against an external reference.
// DeadlineTime and all history timestamps are epoch milliseconds.
type Task struct {
	ID              int64         `json:"id"`
	ReferenceID     int64         `json:"reference_id"`
	ReferenceType   ReferenceType `json:"reference_type"`
	TaskType        TaskType      `json:"task"`
	Status          TaskStatus    `json:"status"`
	AssigneeID      int64         `json:"assignee_id"`
	Priority        Priority      `json:"priority"`
	DeadlineTime    int64         `json:"task_deadline_time"`
	Description     string        `json:"description"`
	ActivityHistory []Activity    `json:"activity_history"`
	Comments        []Comment     `json:"comments"`
}

// Clone returns a deep copy so callers never share history slices with a store.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.ActivityHistory = append([]Activity(nil), t.ActivityHistory...)
	c.Comments = append([]Comment(nil), t.Comments...)
	return &c
}

// IsActive reports whether the task still counts as an open obligation.
func (t *Task) IsActive() bool {
	return !t.Status.IsTerminal()
}

// AppendActivity adds a history entry. Entries are never edited afterwards.
func (t *Task) AppendActivity(a Activity) {
	t.ActivityHistory = append(t.ActivityHistory, a)
}

func (t *Task) AppendComment(c Comment) {
	t.Comments = append(t.Comments, c)
}

// ValidateTransition checks a status change against the lifecycle:
// ASSIGNED -> STARTED -> COMPLETED, and ASSIGNED/STARTED -> CANCELLED.
// A change to the same status is accepted as a no-op.
func ValidateTransition(from, to TaskStatus) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if from == to {
		return nil
	}

	switch from {
	case TaskStatusAssigned:
		if to != TaskStatusStarted && to != TaskStatusCancelled {
			return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, from, to)
		}
	case TaskStatusStarted:
		if to != TaskStatusCompleted && to != TaskStatusCancelled {
			return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, from, to)
		}
	case TaskStatusCompleted, TaskStatusCancelled:
		return fmt.Errorf("%w: task is %s", ErrInvalidTransition, from)
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}

	return nil
}
