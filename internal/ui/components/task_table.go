package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/workforce/pkg/models"
)

var columnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)

// TaskTable renders tasks one per line, in the order given.
type TaskTable struct {
	Tasks []*models.Task
	Title string
}

func NewTaskTable(title string, tasks []*models.Task) *TaskTable {
	return &TaskTable{Title: title, Tasks: tasks}
}

func (t *TaskTable) View() string {
	var b strings.Builder
	if t.Title != "" {
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}
	if len(t.Tasks) == 0 {
		b.WriteString(placeholderStyle.Render("No tasks"))
		return b.String()
	}

	b.WriteString(columnStyle.Render(fmt.Sprintf("%-6s %-32s %-10s %-14s %-9s %-7s %s",
		"ID", "TASK", "STATUS", "REFERENCE", "ASSIGNEE", "PRIO", "DEADLINE")))
	for _, task := range t.Tasks {
		// Pad before styling so ANSI codes do not break alignment.
		status := StatusBadge(task.Status) + strings.Repeat(" ", max(0, 10-len(task.Status)))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%-6d %-32s %s %-14s %-9d %-7s %s",
			task.ID, task.TaskType, status,
			fmt.Sprintf("%s %d", task.ReferenceType, task.ReferenceID),
			task.AssigneeID, task.Priority, FormatMillis(task.DeadlineTime)))
	}
	return b.String()
}
