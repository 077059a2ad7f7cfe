package service

import (
	"context"
	"fmt"

	"github.com/ldi/workforce/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type AssignByReferenceRequest struct {
	ReferenceID   int64                `json:"reference_id"`
	ReferenceType models.ReferenceType `json:"reference_type"`
	AssigneeID    int64                `json:"assignee_id"`
	// Priority and DeadlineTime apply to the newly created tasks; zero
	// values fall back to MEDIUM and creation time plus the default deadline.
	Priority     models.Priority `json:"priority,omitempty"`
	DeadlineTime int64           `json:"task_deadline_time,omitempty"`
	Actor        string          `json:"actor,omitempty"`
}

// AssignmentSummary describes what a reconciliation changed.
type AssignmentSummary struct {
	ReferenceID      int64                `json:"reference_id"`
	ReferenceType    models.ReferenceType `json:"reference_type"`
	AssigneeID       int64                `json:"assignee_id"`
	CancelledTaskIDs []int64              `json:"cancelled_task_ids"`
	CreatedTaskIDs   []int64              `json:"created_task_ids"`
	TasksAffected    int                  `json:"tasks_affected"`
	Message          string               `json:"message"`
}

// AssignByReference hands every task type required by the reference to a new
// assignee. For each type, all ASSIGNED or STARTED tasks are cancelled and
// exactly one new ASSIGNED task is created, so at most one active task per
// type remains. Old tasks are kept as CANCELLED for the audit trail.
//
// A reference type with no applicable task types is a successful no-op.
func (s *TaskService) AssignByReference(ctx context.Context, req AssignByReferenceRequest) (summary *AssignmentSummary, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.AssignByReference", trace.WithAttributes(
		attribute.Int64("reference.id", req.ReferenceID),
		attribute.String("reference.type", string(req.ReferenceType)),
		attribute.Int64("assignee.id", req.AssigneeID),
	))
	defer func() { endSpan(span, err) }()

	if req.AssigneeID <= 0 {
		return nil, fmt.Errorf("%w: assignee_id is required", models.ErrValidation)
	}
	if req.Priority != "" && !req.Priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, req.Priority)
	}

	summary = &AssignmentSummary{
		ReferenceID:      req.ReferenceID,
		ReferenceType:    req.ReferenceType,
		AssigneeID:       req.AssigneeID,
		CancelledTaskIDs: []int64{},
		CreatedTaskIDs:   []int64{},
	}

	required := s.catalog.ApplicableTaskTypes(req.ReferenceType)
	if len(required) == 0 {
		summary.Message = fmt.Sprintf("No applicable tasks for reference %d", req.ReferenceID)
		return summary, nil
	}

	unlock := s.locks.lock(referenceKey{id: req.ReferenceID, typ: req.ReferenceType})
	defer unlock()

	existing, err := s.store.FindByReference(ctx, req.ReferenceID, req.ReferenceType)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks for reference %d: %w", req.ReferenceID, err)
	}

	for _, taskType := range required {
		// Cancel before create: a failure in between leaves no active task
		// of this type rather than two.
		for _, t := range existing {
			if t.TaskType != taskType || !t.IsActive() {
				continue
			}
			s.recordChange(t, models.FieldStatus, string(t.Status), string(models.TaskStatusCancelled), req.Actor)
			t.Status = models.TaskStatusCancelled
			t.Description = DescriptionCancelled
			if _, err := s.store.Save(ctx, t); err != nil {
				return summary, fmt.Errorf("failed to cancel task %d: %w", t.ID, err)
			}
			summary.CancelledTaskIDs = append(summary.CancelledTaskIDs, t.ID)
		}

		t := s.newTask(req.ReferenceID, req.ReferenceType, taskType, req.AssigneeID,
			req.Priority, req.DeadlineTime, DescriptionReassigned, req.Actor)
		created, err := s.store.Create(ctx, t)
		if err != nil {
			return summary, fmt.Errorf("failed to create %s task: %w", taskType, err)
		}
		summary.CreatedTaskIDs = append(summary.CreatedTaskIDs, created.ID)
	}

	summary.TasksAffected = len(summary.CancelledTaskIDs) + len(summary.CreatedTaskIDs)
	summary.Message = fmt.Sprintf("Tasks reassigned successfully for reference %d", req.ReferenceID)
	span.SetAttributes(attribute.Int("tasks.affected", summary.TasksAffected))
	return summary, nil
}
