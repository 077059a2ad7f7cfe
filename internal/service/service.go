// Package service implements the task lifecycle: creation, reassignment by
// reference, status and priority changes, deadline-window retrieval and the
// per-task activity and comment history.
//
// Every mutation of a task runs while holding the lock of the task's
// reference, so reconciliation and direct updates on the same reference never
// interleave. Work on different references proceeds in parallel.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/workforce/internal/store"
	"github.com/ldi/workforce/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DescriptionCreated is set on tasks created without a description.
	DescriptionCreated = "New task created."
	// DescriptionReassigned is set on tasks created by reconciliation.
	DescriptionReassigned = "Newly assigned via assign-by-ref"
	// DescriptionCancelled is set on tasks cancelled by reconciliation.
	DescriptionCancelled = "Cancelled due to reassignment"

	DefaultDeadline = 24 * time.Hour

	tracerName = "github.com/ldi/workforce/internal/service"
)

type Options struct {
	// Catalog defaults to models.DefaultCatalog().
	Catalog *models.Catalog
	// Clock defaults to time.Now.
	Clock func() time.Time
	// DefaultDeadline is added to the creation time when a request has no
	// deadline. Defaults to DefaultDeadline.
	DefaultDeadline time.Duration
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

type TaskService struct {
	store           store.Store
	catalog         *models.Catalog
	clock           func() time.Time
	defaultDeadline time.Duration
	locks           *referenceLocks
	tracer          trace.Tracer
}

func New(s store.Store, opts Options) *TaskService {
	if opts.Catalog == nil {
		opts.Catalog = models.DefaultCatalog()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DefaultDeadline <= 0 {
		opts.DefaultDeadline = DefaultDeadline
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &TaskService{
		store:           s,
		catalog:         opts.Catalog,
		clock:           opts.Clock,
		defaultDeadline: opts.DefaultDeadline,
		locks:           newReferenceLocks(),
		tracer:          opts.TracerProvider.Tracer(tracerName),
	}
}

// Catalog returns the reference task catalog the service reconciles against.
func (s *TaskService) Catalog() *models.Catalog {
	return s.catalog
}

type CreateTaskRequest struct {
	ReferenceID   int64                `json:"reference_id"`
	ReferenceType models.ReferenceType `json:"reference_type"`
	TaskType      models.TaskType      `json:"task"`
	AssigneeID    int64                `json:"assignee_id"`
	Priority      models.Priority      `json:"priority,omitempty"`
	DeadlineTime  int64                `json:"task_deadline_time,omitempty"`
	Description   string               `json:"description,omitempty"`
	Actor         string               `json:"actor,omitempty"`
}

// UpdateTaskRequest carries a partial update: nil fields are left untouched.
type UpdateTaskRequest struct {
	TaskID       int64              `json:"task_id"`
	Status       *models.TaskStatus `json:"task_status,omitempty"`
	Description  *string            `json:"description,omitempty"`
	Priority     *models.Priority   `json:"priority,omitempty"`
	AssigneeID   *int64             `json:"assignee_id,omitempty"`
	DeadlineTime *int64             `json:"task_deadline_time,omitempty"`
	Actor        string             `json:"actor,omitempty"`
}

// CreateTasks validates every item before creating any of them. Created
// tasks start ASSIGNED with a creation entry in their history.
func (s *TaskService) CreateTasks(ctx context.Context, items []CreateTaskRequest) (tasks []*models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.CreateTasks",
		trace.WithAttributes(attribute.Int("items", len(items))))
	defer func() { endSpan(span, err) }()

	var failures []*models.ItemError
	for i, item := range items {
		if err := s.validateCreate(item); err != nil {
			failures = append(failures, &models.ItemError{Index: i, Err: err})
		}
	}
	if len(failures) > 0 {
		return nil, &models.BatchError{Failures: failures}
	}

	tasks = make([]*models.Task, 0, len(items))
	for _, item := range items {
		t := s.newTask(item.ReferenceID, item.ReferenceType, item.TaskType, item.AssigneeID,
			item.Priority, item.DeadlineTime, item.Description, item.Actor)
		if t.Description == "" {
			t.Description = DescriptionCreated
		}

		unlock := s.locks.lock(keyOf(t))
		created, err := s.store.Create(ctx, t)
		unlock()
		if err != nil {
			return tasks, fmt.Errorf("failed to create task: %w", err)
		}
		tasks = append(tasks, created)
	}

	return tasks, nil
}

func (s *TaskService) validateCreate(item CreateTaskRequest) error {
	if !item.ReferenceType.IsValid() {
		return fmt.Errorf("%w: unknown reference type %q", models.ErrValidation, item.ReferenceType)
	}
	if !item.TaskType.IsValid() {
		return fmt.Errorf("%w: unknown task %q", models.ErrValidation, item.TaskType)
	}
	if item.AssigneeID <= 0 {
		return fmt.Errorf("%w: assignee_id is required", models.ErrValidation)
	}
	if !s.catalog.Supports(item.ReferenceType, item.TaskType) {
		return fmt.Errorf("%w: task %s does not apply to reference type %s", models.ErrValidation, item.TaskType, item.ReferenceType)
	}
	if item.Priority != "" && !item.Priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", models.ErrValidation, item.Priority)
	}
	return nil
}

// UpdateTasks applies each partial update independently. Items that fail are
// reported in a *models.BatchError; the others are still applied and returned.
func (s *TaskService) UpdateTasks(ctx context.Context, items []UpdateTaskRequest) (tasks []*models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.UpdateTasks",
		trace.WithAttributes(attribute.Int("items", len(items))))
	defer func() { endSpan(span, err) }()

	tasks = []*models.Task{}
	var failures []*models.ItemError
	for i, item := range items {
		updated, err := s.mutate(ctx, item.TaskID, func(t *models.Task) (bool, error) {
			return s.applyUpdate(t, item)
		})
		if err != nil {
			failures = append(failures, &models.ItemError{Index: i, TaskID: item.TaskID, Err: err})
			continue
		}
		tasks = append(tasks, updated)
	}

	if len(failures) > 0 {
		return tasks, &models.BatchError{Failures: failures}
	}
	return tasks, nil
}

// applyUpdate validates every present field before touching t.
func (s *TaskService) applyUpdate(t *models.Task, item UpdateTaskRequest) (bool, error) {
	if item.Status != nil {
		if err := models.ValidateTransition(t.Status, *item.Status); err != nil {
			return false, err
		}
	}
	if item.Priority != nil && !item.Priority.IsValid() {
		return false, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, *item.Priority)
	}

	changed := false
	if item.Status != nil && *item.Status != t.Status {
		s.recordChange(t, models.FieldStatus, string(t.Status), string(*item.Status), item.Actor)
		t.Status = *item.Status
		changed = true
	}
	if item.Priority != nil && *item.Priority != t.Priority {
		s.recordChange(t, models.FieldPriority, string(t.Priority), string(*item.Priority), item.Actor)
		t.Priority = *item.Priority
		changed = true
	}
	if item.AssigneeID != nil && *item.AssigneeID != t.AssigneeID {
		s.recordChange(t, models.FieldAssignee, formatID(t.AssigneeID), formatID(*item.AssigneeID), item.Actor)
		t.AssigneeID = *item.AssigneeID
		changed = true
	}
	if item.Description != nil && *item.Description != t.Description {
		t.Description = *item.Description
		changed = true
	}
	if item.DeadlineTime != nil && *item.DeadlineTime != t.DeadlineTime {
		t.DeadlineTime = *item.DeadlineTime
		changed = true
	}
	return changed, nil
}

// UpdateStatus moves a single task to status, enforcing the lifecycle.
func (s *TaskService) UpdateStatus(ctx context.Context, taskID int64, status models.TaskStatus, actor string) (t *models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.UpdateStatus", trace.WithAttributes(
		attribute.Int64("task.id", taskID),
		attribute.String("task.status", string(status)),
	))
	defer func() { endSpan(span, err) }()

	return s.mutate(ctx, taskID, func(t *models.Task) (bool, error) {
		if err := models.ValidateTransition(t.Status, status); err != nil {
			return false, err
		}
		if t.Status == status {
			return false, nil
		}
		s.recordChange(t, models.FieldStatus, string(t.Status), string(status), actor)
		t.Status = status
		return true, nil
	})
}

// UpdatePriority sets a new priority. An unchanged priority is a no-op and
// adds nothing to the history.
func (s *TaskService) UpdatePriority(ctx context.Context, taskID int64, priority models.Priority, actor string) (t *models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.UpdatePriority", trace.WithAttributes(
		attribute.Int64("task.id", taskID),
		attribute.String("task.priority", string(priority)),
	))
	defer func() { endSpan(span, err) }()

	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, priority)
	}

	return s.mutate(ctx, taskID, func(t *models.Task) (bool, error) {
		if t.Priority == priority {
			return false, nil
		}
		s.recordChange(t, models.FieldPriority, string(t.Priority), string(priority), actor)
		t.Priority = priority
		return true, nil
	})
}

func (s *TaskService) GetByID(ctx context.Context, taskID int64) (t *models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.GetByID",
		trace.WithAttributes(attribute.Int64("task.id", taskID)))
	defer func() { endSpan(span, err) }()

	return s.store.Get(ctx, taskID)
}

// GetDetails returns the task with its full activity history and comments.
func (s *TaskService) GetDetails(ctx context.Context, taskID int64) (*models.Task, error) {
	return s.GetByID(ctx, taskID)
}

// GetByReference returns every task of a reference, across task types and
// statuses, ordered by id.
func (s *TaskService) GetByReference(ctx context.Context, referenceID int64) (tasks []*models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.GetByReference",
		trace.WithAttributes(attribute.Int64("reference.id", referenceID)))
	defer func() { endSpan(span, err) }()

	tasks, err = s.store.FindByReferenceID(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	sortByID(tasks)
	return tasks, nil
}

// ListTasks returns every task ordered by id.
func (s *TaskService) ListTasks(ctx context.Context) (tasks []*models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.ListTasks")
	defer func() { endSpan(span, err) }()

	tasks, err = s.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	sortByID(tasks)
	return tasks, nil
}

func (s *TaskService) GetByPriority(ctx context.Context, priority models.Priority) (tasks []*models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.GetByPriority",
		trace.WithAttributes(attribute.String("task.priority", string(priority))))
	defer func() { endSpan(span, err) }()

	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, priority)
	}

	all, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	tasks = []*models.Task{}
	for _, t := range all {
		if t.Priority == priority {
			tasks = append(tasks, t)
		}
	}
	sortByID(tasks)
	return tasks, nil
}

// mutate loads a task, applies fn under the task's reference lock and saves
// the result when fn reports a change.
func (s *TaskService) mutate(ctx context.Context, taskID int64, fn func(t *models.Task) (bool, error)) (*models.Task, error) {
	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	// Reference fields never change, so the key from the first read is stable.
	unlock := s.locks.lock(keyOf(t))
	defer unlock()

	t, err = s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	changed, err := fn(t)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", taskID, err)
	}
	if !changed {
		return t, nil
	}

	saved, err := s.store.Save(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to save task %d: %w", taskID, err)
	}
	return saved, nil
}

// newTask builds an ASSIGNED task with defaults applied and its creation
// recorded in the history.
func (s *TaskService) newTask(referenceID int64, referenceType models.ReferenceType, taskType models.TaskType,
	assigneeID int64, priority models.Priority, deadline int64, description, actor string) *models.Task {
	now := s.clock()
	if priority == "" {
		priority = models.PriorityMedium
	}
	if deadline == 0 {
		deadline = now.Add(s.defaultDeadline).UnixMilli()
	}

	t := &models.Task{
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		TaskType:      taskType,
		Status:        models.TaskStatusAssigned,
		AssigneeID:    assigneeID,
		Priority:      priority,
		DeadlineTime:  deadline,
		Description:   description,
	}
	s.recordChange(t, models.FieldTask, "", string(models.TaskStatusAssigned), actor)
	return t
}

func (s *TaskService) newActivity(field, oldValue, newValue, actor string) models.Activity {
	if actor == "" {
		actor = models.SystemActor
	}
	return models.Activity{
		ID:        uuid.New().String(),
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		Actor:     actor,
		Timestamp: s.clock().UnixMilli(),
	}
}

func (s *TaskService) recordChange(t *models.Task, field, oldValue, newValue, actor string) {
	t.AppendActivity(s.newActivity(field, oldValue, newValue, actor))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, models.ErrNotFound) {
			span.SetAttributes(attribute.Bool("not_found", true))
		}
	}
	span.End()
}
