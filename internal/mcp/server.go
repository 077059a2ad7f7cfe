package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ldi/workforce/internal/service"
	"github.com/ldi/workforce/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server exposing the task service as tools.
func NewServer(svc *service.TaskService) *server.MCPServer {
	s := server.NewMCPServer("Workforce", "0.1.0")

	// Task lifecycle
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task against a reference. New tasks start ASSIGNED."),
		mcp.WithNumber("reference_id", mcp.Description("Reference id"), mcp.Required()),
		mcp.WithString("reference_type", mcp.Description("Reference type (ORDER|ENTITY)"), mcp.Required()),
		mcp.WithString("task", mcp.Description("Task type, must apply to the reference type"), mcp.Required()),
		mcp.WithNumber("assignee_id", mcp.Description("Assignee id"), mcp.Required()),
		mcp.WithString("priority", mcp.Description("Priority (HIGH|MEDIUM|LOW), defaults to MEDIUM")),
		mcp.WithNumber("task_deadline_time", mcp.Description("Deadline in epoch milliseconds, defaults to one day from now")),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	), createTaskHandler(svc))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Partially update a task. Omitted fields are left unchanged."),
		mcp.WithNumber("task_id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("status", mcp.Description("New status (ASSIGNED|STARTED|COMPLETED|CANCELLED)")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("priority", mcp.Description("New priority")),
		mcp.WithNumber("assignee_id", mcp.Description("New assignee id")),
		mcp.WithNumber("task_deadline_time", mcp.Description("New deadline in epoch milliseconds")),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	), updateTaskHandler(svc))

	s.AddTool(mcp.NewTool("update_task_status",
		mcp.WithDescription("Move a task through its lifecycle: ASSIGNED -> STARTED -> COMPLETED, or cancel it."),
		mcp.WithNumber("task_id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("status", mcp.Description("New status"), mcp.Required()),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	), updateTaskStatusHandler(svc))

	s.AddTool(mcp.NewTool("update_task_priority",
		mcp.WithDescription("Change the priority of a task."),
		mcp.WithNumber("task_id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("new_priority", mcp.Description("New priority (HIGH|MEDIUM|LOW)"), mcp.Required()),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	), updatePriorityHandler(svc))

	// Reconciliation
	s.AddTool(mcp.NewTool("assign_by_reference",
		mcp.WithDescription("Reassign every task a reference requires. Open tasks are cancelled and one new task per type is created."),
		mcp.WithNumber("reference_id", mcp.Description("Reference id"), mcp.Required()),
		mcp.WithString("reference_type", mcp.Description("Reference type (ORDER|ENTITY)"), mcp.Required()),
		mcp.WithNumber("assignee_id", mcp.Description("New assignee id"), mcp.Required()),
		mcp.WithString("priority", mcp.Description("Priority for the new tasks")),
		mcp.WithNumber("task_deadline_time", mcp.Description("Deadline for the new tasks in epoch milliseconds")),
		mcp.WithString("actor", mcp.Description("Who is making the change")),
	), assignByReferenceHandler(svc))

	s.AddTool(mcp.NewTool("list_applicable_task_types",
		mcp.WithDescription("List the task types a reference type requires, in order."),
		mcp.WithString("reference_type", mcp.Description("Reference type (ORDER|ENTITY)"), mcp.Required()),
	), listApplicableTaskTypesHandler(svc))

	// Queries
	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a task with its activity history and comments."),
		mcp.WithNumber("task_id", mcp.Description("Task id"), mcp.Required()),
	), getTaskHandler(svc))

	s.AddTool(mcp.NewTool("get_tasks_by_reference",
		mcp.WithDescription("List every task of a reference, including cancelled ones."),
		mcp.WithNumber("reference_id", mcp.Description("Reference id"), mcp.Required()),
	), getTasksByReferenceHandler(svc))

	s.AddTool(mcp.NewTool("get_tasks_by_priority",
		mcp.WithDescription("List tasks with the given priority."),
		mcp.WithString("priority", mcp.Description("Priority (HIGH|MEDIUM|LOW)"), mcp.Required()),
	), getTasksByPriorityHandler(svc))

	s.AddTool(mcp.NewTool("fetch_tasks_by_window",
		mcp.WithDescription("List non-cancelled tasks of the given assignees due within an inclusive window."),
		mcp.WithArray("assignee_ids", mcp.Description("Assignee ids"), mcp.Required(),
			mcp.Items(map[string]any{"type": "number"})),
		mcp.WithNumber("start_time", mcp.Description("Window start in epoch milliseconds"), mcp.Required()),
		mcp.WithNumber("end_time", mcp.Description("Window end in epoch milliseconds"), mcp.Required()),
	), fetchByWindowHandler(svc))

	// History
	s.AddTool(mcp.NewTool("add_comment",
		mcp.WithDescription("Append a comment to a task."),
		mcp.WithNumber("task_id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("message", mcp.Description("Comment text"), mcp.Required()),
		mcp.WithString("author", mcp.Description("Comment author")),
	), addCommentHandler(svc))

	s.AddTool(mcp.NewTool("record_activity",
		mcp.WithDescription("Append an activity entry for a change made outside this server."),
		mcp.WithNumber("task_id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("field", mcp.Description("Changed field"), mcp.Required()),
		mcp.WithString("old_value", mcp.Description("Previous value")),
		mcp.WithString("new_value", mcp.Description("New value")),
		mcp.WithString("actor", mcp.Description("Who made the change")),
	), recordActivityHandler(svc))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func createTaskHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := service.CreateTaskRequest{
			ReferenceID:   mcp.ParseInt64(request, "reference_id", 0),
			ReferenceType: models.ReferenceType(mcp.ParseString(request, "reference_type", "")),
			TaskType:      models.TaskType(mcp.ParseString(request, "task", "")),
			AssigneeID:    mcp.ParseInt64(request, "assignee_id", 0),
			Priority:      models.Priority(mcp.ParseString(request, "priority", "")),
			DeadlineTime:  mcp.ParseInt64(request, "task_deadline_time", 0),
			Description:   mcp.ParseString(request, "description", ""),
			Actor:         mcp.ParseString(request, "actor", ""),
		}

		tasks, err := svc.CreateTasks(ctx, []service.CreateTaskRequest{req})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tasks[0])
	}
}

func updateTaskHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := service.UpdateTaskRequest{
			TaskID: mcp.ParseInt64(request, "task_id", 0),
			Actor:  mcp.ParseString(request, "actor", ""),
		}

		args, _ := request.Params.Arguments.(map[string]any)
		if status, ok := args["status"].(string); ok {
			s := models.TaskStatus(status)
			req.Status = &s
		}
		if description, ok := args["description"].(string); ok {
			req.Description = &description
		}
		if priority, ok := args["priority"].(string); ok {
			p := models.Priority(priority)
			req.Priority = &p
		}
		if _, ok := args["assignee_id"]; ok {
			id := mcp.ParseInt64(request, "assignee_id", 0)
			req.AssigneeID = &id
		}
		if _, ok := args["task_deadline_time"]; ok {
			deadline := mcp.ParseInt64(request, "task_deadline_time", 0)
			req.DeadlineTime = &deadline
		}

		tasks, err := svc.UpdateTasks(ctx, []service.UpdateTaskRequest{req})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tasks[0])
	}
}

func updateTaskStatusHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseInt64(request, "task_id", 0)
		status := models.TaskStatus(mcp.ParseString(request, "status", ""))
		actor := mcp.ParseString(request, "actor", "")

		t, err := svc.UpdateStatus(ctx, id, status, actor)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %d is now %s", t.ID, t.Status)), nil
	}
}

func updatePriorityHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseInt64(request, "task_id", 0)
		priority := models.Priority(mcp.ParseString(request, "new_priority", ""))
		actor := mcp.ParseString(request, "actor", "")

		t, err := svc.UpdatePriority(ctx, id, priority, actor)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %d priority is %s", t.ID, t.Priority)), nil
	}
}

func assignByReferenceHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, err := svc.AssignByReference(ctx, service.AssignByReferenceRequest{
			ReferenceID:   mcp.ParseInt64(request, "reference_id", 0),
			ReferenceType: models.ReferenceType(mcp.ParseString(request, "reference_type", "")),
			AssigneeID:    mcp.ParseInt64(request, "assignee_id", 0),
			Priority:      models.Priority(mcp.ParseString(request, "priority", "")),
			DeadlineTime:  mcp.ParseInt64(request, "task_deadline_time", 0),
			Actor:         mcp.ParseString(request, "actor", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(summary)
	}
}

func listApplicableTaskTypesHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref := models.ReferenceType(mcp.ParseString(request, "reference_type", ""))
		if !ref.IsValid() {
			return mcp.NewToolResultError(fmt.Sprintf("Unknown reference type '%s'", ref)), nil
		}
		return jsonResult(map[string]any{"task_types": svc.Catalog().ApplicableTaskTypes(ref)})
	}
}

func getTaskHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, err := svc.GetDetails(ctx, mcp.ParseInt64(request, "task_id", 0))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func getTasksByReferenceHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := svc.GetByReference(ctx, mcp.ParseInt64(request, "reference_id", 0))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func getTasksByPriorityHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		priority := models.Priority(mcp.ParseString(request, "priority", ""))
		tasks, err := svc.GetByPriority(ctx, priority)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func fetchByWindowHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		raw, _ := args["assignee_ids"].([]any)
		ids := make([]int64, 0, len(raw))
		for _, v := range raw {
			n, ok := v.(float64)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid assignee id %v", v)), nil
			}
			ids = append(ids, int64(n))
		}

		start := mcp.ParseInt64(request, "start_time", 0)
		end := mcp.ParseInt64(request, "end_time", 0)

		tasks, err := svc.FetchByAssigneesAndWindow(ctx, ids, start, end)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func addCommentHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseInt64(request, "task_id", 0)
		message := mcp.ParseString(request, "message", "")
		author := mcp.ParseString(request, "author", "")

		t, err := svc.AddComment(ctx, id, message, author)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Comment added to task %d (%d total)", t.ID, len(t.Comments))), nil
	}
}

func recordActivityHandler(svc *service.TaskService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseInt64(request, "task_id", 0)
		err := svc.RecordActivity(ctx, id,
			mcp.ParseString(request, "field", ""),
			mcp.ParseString(request, "old_value", ""),
			mcp.ParseString(request, "new_value", ""),
			mcp.ParseString(request, "actor", ""),
		)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Activity recorded successfully"), nil
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
