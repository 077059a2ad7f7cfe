package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ldi/workforce/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordActivity appends a history entry for a change made outside the
// service's own update paths.
func (s *TaskService) RecordActivity(ctx context.Context, taskID int64, field, oldValue, newValue, actor string) (err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.RecordActivity", trace.WithAttributes(
		attribute.Int64("task.id", taskID),
		attribute.String("activity.field", field),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(field) == "" {
		return fmt.Errorf("%w: activity field is required", models.ErrValidation)
	}

	_, err = s.mutate(ctx, taskID, func(t *models.Task) (bool, error) {
		s.recordChange(t, field, oldValue, newValue, actor)
		return true, nil
	})
	return err
}

// AddComment appends a comment stamped with the current time. Timestamps
// never go backwards within a task even if the clock does.
func (s *TaskService) AddComment(ctx context.Context, taskID int64, message, author string) (t *models.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.AddComment",
		trace.WithAttributes(attribute.Int64("task.id", taskID)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: comment message is required", models.ErrValidation)
	}

	return s.mutate(ctx, taskID, func(t *models.Task) (bool, error) {
		ts := s.clock().UnixMilli()
		if n := len(t.Comments); n > 0 && t.Comments[n-1].Timestamp > ts {
			ts = t.Comments[n-1].Timestamp
		}
		t.AppendComment(models.Comment{
			ID:        uuid.New().String(),
			Message:   message,
			Author:    author,
			Timestamp: ts,
		})
		return true, nil
	})
}
