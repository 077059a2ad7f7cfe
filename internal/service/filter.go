package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/ldi/workforce/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FetchByAssigneesAndWindow returns the tasks of the given assignees whose
// deadline lies in [startTime, endTime], excluding CANCELLED tasks.
// COMPLETED tasks are included. Results are ordered by id.
func (s *TaskService) FetchByAssigneesAndWindow(ctx context.Context, assigneeIDs []int64, startTime, endTime int64) (tasks []*models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.FetchByAssigneesAndWindow", trace.WithAttributes(
		attribute.Int("assignees", len(assigneeIDs)),
		attribute.Int64("window.start", startTime),
		attribute.Int64("window.end", endTime),
	))
	defer func() { endSpan(span, err) }()

	if startTime > endTime {
		return nil, fmt.Errorf("%w: window start %d is after end %d", models.ErrValidation, startTime, endTime)
	}
	if len(assigneeIDs) == 0 {
		return []*models.Task{}, nil
	}

	candidates, err := s.store.FindByAssignees(ctx, assigneeIDs)
	if err != nil {
		return nil, err
	}

	tasks = make([]*models.Task, 0, len(candidates))
	for _, t := range candidates {
		if InWindow(t, startTime, endTime) {
			tasks = append(tasks, t)
		}
	}
	sortByID(tasks)
	return tasks, nil
}

// InWindow reports whether t is a non-cancelled task due within the
// inclusive window.
func InWindow(t *models.Task, startTime, endTime int64) bool {
	if t.Status == models.TaskStatusCancelled {
		return false
	}
	return t.DeadlineTime >= startTime && t.DeadlineTime <= endTime
}

func sortByID(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
