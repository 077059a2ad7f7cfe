package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/workforce/pkg/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(0, 1)
)

var statusColors = map[models.TaskStatus]lipgloss.Color{
	models.TaskStatusAssigned:  lipgloss.Color("12"),
	models.TaskStatusStarted:   lipgloss.Color("214"),
	models.TaskStatusCompleted: lipgloss.Color("42"),
	models.TaskStatusCancelled: lipgloss.Color("240"),
}

// StatusBadge renders a status in its color.
func StatusBadge(s models.TaskStatus) string {
	color, ok := statusColors[s]
	if !ok {
		color = lipgloss.Color("196")
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(string(s))
}

// FormatMillis renders an epoch millisecond timestamp in UTC.
func FormatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05Z")
}

// TaskDetails renders one task with its activity history and comments.
type TaskDetails struct {
	Task  *models.Task
	Width int
}

func NewTaskDetails(t *models.Task, width int) *TaskDetails {
	return &TaskDetails{Task: t, Width: width}
}

func (d *TaskDetails) View() string {
	if d.Task == nil {
		return placeholderStyle.Render("No task selected")
	}
	t := d.Task

	title := headerStyle.Render(fmt.Sprintf("Task #%d  %s", t.ID, t.TaskType))

	fields := []string{
		field("Status", StatusBadge(t.Status)),
		field("Reference", fmt.Sprintf("%s %d", t.ReferenceType, t.ReferenceID)),
		field("Assignee", fmt.Sprintf("%d", t.AssigneeID)),
		field("Priority", string(t.Priority)),
		field("Deadline", FormatMillis(t.DeadlineTime)),
		field("Description", t.Description),
	}

	sections := []string{
		title,
		d.box(t.Status, strings.Join(fields, "\n")),
		sectionStyle.Render(fmt.Sprintf("Activity (%d)", len(t.ActivityHistory))),
		d.activityView(),
		sectionStyle.Render(fmt.Sprintf("Comments (%d)", len(t.Comments))),
		d.commentsView(),
	}
	return strings.Join(sections, "\n")
}

func (d *TaskDetails) box(status models.TaskStatus, content string) string {
	style := boxStyle
	if color, ok := statusColors[status]; ok {
		style = style.BorderForeground(color)
	}
	width := d.Width - 2
	if width < 0 {
		width = 0
	}
	return style.Width(width).Render(content)
}

func (d *TaskDetails) activityView() string {
	if len(d.Task.ActivityHistory) == 0 {
		return placeholderStyle.Render("No activity yet")
	}
	lines := make([]string, 0, len(d.Task.ActivityHistory))
	for _, a := range d.Task.ActivityHistory {
		change := a.NewValue
		if a.OldValue != "" {
			change = a.OldValue + " -> " + a.NewValue
		}
		lines = append(lines, fmt.Sprintf("  %s  %-9s %s (%s)", FormatMillis(a.Timestamp), a.Field, change, a.Actor))
	}
	return strings.Join(lines, "\n")
}

func (d *TaskDetails) commentsView() string {
	if len(d.Task.Comments) == 0 {
		return placeholderStyle.Render("No comments yet")
	}
	wrap := lipgloss.NewStyle().PaddingLeft(4)
	if d.Width > 6 {
		wrap = wrap.Width(d.Width - 2)
	}
	lines := make([]string, 0, len(d.Task.Comments)*2)
	for _, c := range d.Task.Comments {
		author := c.Author
		if author == "" {
			author = "anonymous"
		}
		lines = append(lines, fmt.Sprintf("  %s  %s", FormatMillis(c.Timestamp), author))
		lines = append(lines, wrap.Render(c.Message))
	}
	return strings.Join(lines, "\n")
}

func field(label, value string) string {
	return labelStyle.Render(label) + value
}
