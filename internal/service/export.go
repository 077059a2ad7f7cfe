package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
)

// ExportJSONL writes every task, with history and comments, as one JSON
// object per line in id order.
func (s *TaskService) ExportJSONL(ctx context.Context, w io.Writer) (n int, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.ExportJSONL")
	defer func() { endSpan(span, err) }()

	tasks, err := s.store.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	sortByID(tasks)

	enc := json.NewEncoder(w)
	for _, t := range tasks {
		if err := enc.Encode(t); err != nil {
			return n, fmt.Errorf("failed to write task %d: %w", t.ID, err)
		}
		n++
	}
	span.SetAttributes(attribute.Int("tasks.exported", n))
	return n, nil
}
