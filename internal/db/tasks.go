package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ldi/workforce/pkg/models"
)

const taskColumns = `id, reference_id, reference_type, task_type, status, assignee_id, priority, deadline_time, description`

// historyBatchSize caps the task ids per history query, well under
// SQLite's limit on host parameters.
const historyBatchSize = 500

// Create inserts a new task. The id is assigned by SQLite and never reused.
func (db *DB) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", models.ErrValidation)
	}

	var stored *models.Task
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		stored, err = db.createTask(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Get retrieves a task with its activity history and comments.
func (db *DB) Get(ctx context.Context, id int64) (*models.Task, error) {
	var t *models.Task
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = db.getTask(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Save updates the mutable fields of an existing task and appends any new
// history entries. A zero id creates the task instead.
func (db *DB) Save(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", models.ErrValidation)
	}
	if t.ID == 0 {
		return db.Create(ctx, t)
	}

	var stored *models.Task
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE tasks
			SET status = ?, assignee_id = ?, priority = ?, deadline_time = ?, description = ?,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`
		res, err := tx.ExecContext(ctx, query,
			t.Status, t.AssigneeID, t.Priority, t.DeadlineTime, t.Description, t.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("task %d: %w", t.ID, models.ErrNotFound)
		}

		if err := appendActivities(ctx, tx, t.ID, t.ActivityHistory); err != nil {
			return err
		}
		if err := appendComments(ctx, tx, t.ID, t.Comments); err != nil {
			return err
		}

		stored, err = db.getTask(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (db *DB) FindAll(ctx context.Context) ([]*models.Task, error) {
	return db.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
}

func (db *DB) FindByReference(ctx context.Context, referenceID int64, referenceType models.ReferenceType) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE reference_id = ? AND reference_type = ? ORDER BY id`
	return db.queryTasks(ctx, query, referenceID, referenceType)
}

func (db *DB) FindByReferenceID(ctx context.Context, referenceID int64) ([]*models.Task, error) {
	return db.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE reference_id = ? ORDER BY id`, referenceID)
}

// FindByAssignees passes the ids as one JSON array so the number of
// assignees never counts against the host parameter limit.
func (db *DB) FindByAssignees(ctx context.Context, assigneeIDs []int64) ([]*models.Task, error) {
	if len(assigneeIDs) == 0 {
		return nil, nil
	}
	ids, err := json.Marshal(assigneeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode assignee ids: %w", err)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE assignee_id IN (SELECT value FROM json_each(?)) ORDER BY id`
	return db.queryTasks(ctx, query, string(ids))
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) createTask(ctx context.Context, exec executor, t *models.Task) (*models.Task, error) {
	query := `
		INSERT INTO tasks (reference_id, reference_type, task_type, status, assignee_id, priority, deadline_time, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	var id int64
	err := exec.QueryRowContext(ctx, query,
		t.ReferenceID, t.ReferenceType, t.TaskType, t.Status, t.AssigneeID, t.Priority, t.DeadlineTime, t.Description,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := appendActivities(ctx, exec, id, t.ActivityHistory); err != nil {
		return nil, err
	}
	if err := appendComments(ctx, exec, id, t.Comments); err != nil {
		return nil, err
	}

	return db.getTask(ctx, exec, id)
}

func (db *DB) getTask(ctx context.Context, exec executor, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanTask(exec.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if err := loadHistory(ctx, exec, []*models.Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// queryTasks runs a task query and loads history for every row inside one
// transaction, so a scan never mixes a record with half of a later write.
func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	var tasks []*models.Task
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query tasks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return fmt.Errorf("failed to scan task: %w", err)
			}
			tasks = append(tasks, t)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		rows.Close()

		return loadHistory(ctx, tx, tasks)
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	t := &models.Task{}
	err := row.Scan(
		&t.ID, &t.ReferenceID, &t.ReferenceType, &t.TaskType, &t.Status,
		&t.AssigneeID, &t.Priority, &t.DeadlineTime, &t.Description,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// loadHistory fills ActivityHistory and Comments for the given tasks,
// historyBatchSize ids at a time.
func loadHistory(ctx context.Context, exec executor, tasks []*models.Task) error {
	byID := make(map[int64]*models.Task, len(tasks))
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	for len(ids) > 0 {
		n := min(len(ids), historyBatchSize)
		if err := loadHistoryBatch(ctx, exec, byID, ids[:n]); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

func loadHistoryBatch(ctx context.Context, exec executor, byID map[int64]*models.Task, ids []int64) error {
	placeholders, args := inClause(ids)

	rows, err := exec.QueryContext(ctx, `
		SELECT task_id, id, field, old_value, new_value, actor, timestamp
		FROM task_activities
		WHERE task_id IN (`+placeholders+`)
		ORDER BY task_id, seq
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query activity history: %w", err)
	}
	for rows.Next() {
		var taskID int64
		var a models.Activity
		if err := rows.Scan(&taskID, &a.ID, &a.Field, &a.OldValue, &a.NewValue, &a.Actor, &a.Timestamp); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan activity: %w", err)
		}
		byID[taskID].ActivityHistory = append(byID[taskID].ActivityHistory, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	rows, err = exec.QueryContext(ctx, `
		SELECT task_id, id, message, author, timestamp
		FROM task_comments
		WHERE task_id IN (`+placeholders+`)
		ORDER BY task_id, seq
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID int64
		var c models.Comment
		if err := rows.Scan(&taskID, &c.ID, &c.Message, &c.Author, &c.Timestamp); err != nil {
			return fmt.Errorf("failed to scan comment: %w", err)
		}
		byID[taskID].Comments = append(byID[taskID].Comments, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}

// appendActivities inserts the entries beyond those already stored. A
// shorter history than the stored one means a caller dropped entries.
func appendActivities(ctx context.Context, exec executor, taskID int64, history []models.Activity) error {
	stored, err := countRows(ctx, exec, `SELECT COUNT(*) FROM task_activities WHERE task_id = ?`, taskID)
	if err != nil {
		return err
	}
	if len(history) < stored {
		return fmt.Errorf("%w: activity history of task %d is append-only", models.ErrValidation, taskID)
	}

	for seq := stored; seq < len(history); seq++ {
		a := history[seq]
		_, err := exec.ExecContext(ctx, `
			INSERT INTO task_activities (task_id, seq, id, field, old_value, new_value, actor, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, taskID, seq, a.ID, a.Field, a.OldValue, a.NewValue, a.Actor, a.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to append activity: %w", err)
		}
	}
	return nil
}

func appendComments(ctx context.Context, exec executor, taskID int64, comments []models.Comment) error {
	stored, err := countRows(ctx, exec, `SELECT COUNT(*) FROM task_comments WHERE task_id = ?`, taskID)
	if err != nil {
		return err
	}
	if len(comments) < stored {
		return fmt.Errorf("%w: comments of task %d are append-only", models.ErrValidation, taskID)
	}

	for seq := stored; seq < len(comments); seq++ {
		c := comments[seq]
		_, err := exec.ExecContext(ctx, `
			INSERT INTO task_comments (task_id, seq, id, message, author, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`, taskID, seq, c.ID, c.Message, c.Author, c.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to append comment: %w", err)
		}
	}
	return nil
}

func countRows(ctx context.Context, exec executor, query string, args ...any) (int, error) {
	var n int
	if err := exec.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
