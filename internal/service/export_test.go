package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/ldi/workforce/pkg/models"
)

func TestExportJSONL(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := svc.ExportJSONL(ctx, &buf)
	if err != nil || n != 0 || buf.Len() != 0 {
		t.Fatalf("expected empty export, got n=%d err=%v len=%d", n, err, buf.Len())
	}

	createTask(t, svc, orderTask(1, 5, models.TaskTypeCreateInvoice))
	task := createTask(t, svc, orderTask(1, 5, models.TaskTypeArrangePickup))
	svc.AddComment(ctx, task.ID, "gate code 1234", "ops")

	n, err = svc.ExportJSONL(ctx, &buf)
	if err != nil {
		t.Fatalf("ExportJSONL failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tasks exported, got %d", n)
	}

	scanner := bufio.NewScanner(&buf)
	var lines []models.Task
	for scanner.Scan() {
		var line models.Task
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 || lines[0].ID != 1 || lines[1].ID != 2 {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	if len(lines[1].Comments) != 1 || lines[1].Comments[0].Message != "gate code 1234" {
		t.Errorf("comments missing from export: %+v", lines[1].Comments)
	}
}
