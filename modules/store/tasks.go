package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

const taskColumns = "id, title, description, due_date, status, priority, created_by, project, tags, estimated_hours, actual_hours, created_at, updated_at"

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t                    domain.Task
		due                  sql.NullString
		status, priority     string
		tags                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &due, &status, &priority, &t.CreatedBy,
		&t.Project, &tags, &t.EstimatedHours, &t.ActualHours, &createdAt, &updatedAt); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)

	var err error
	if t.DueDate, err = decodeTimePtr(due); err != nil {
		return domain.Task{}, fmt.Errorf("failed to decode due_date: %w", err)
	}
	if t.Tags, err = decodeTags(tags); err != nil {
		return domain.Task{}, err
	}
	if t.CreatedAt, err = decodeTime(createdAt); err != nil {
		return domain.Task{}, fmt.Errorf("failed to decode created_at: %w", err)
	}
	if t.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("failed to decode updated_at: %w", err)
	}
	return t, nil
}

// InsertTask assigns an ID and timestamps when missing.
func (q *queries) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	now := q.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.Title, t.Description, encodeTimePtr(t.DueDate), string(t.Status), string(t.Priority), t.CreatedBy,
		t.Project, encodeTags(t.Tags), t.EstimatedHours, t.ActualHours, encodeTime(t.CreatedAt), encodeTime(t.UpdatedAt))
	if err != nil {
		return domain.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return t, nil
}

// UpdateTask writes every mutable column and stamps updated_at.
func (q *queries) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.UpdatedAt = q.now()
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, due_date = ?, status = ?, priority = ?, project = ?,
			tags = ?, estimated_hours = ?, actual_hours = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, encodeTimePtr(t.DueDate), string(t.Status), string(t.Priority), t.Project,
		encodeTags(t.Tags), t.EstimatedHours, t.ActualHours, encodeTime(t.UpdatedAt), t.ID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, domain.NotFound("task", t.ID)
	}
	return t, nil
}

func (q *queries) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.NotFound("task", id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("failed to load task: %w", err)
	}
	return t, nil
}

func taskWhere(f TaskFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(f.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		args = append(args, stringArgs(f.IDs)...)
	}
	if f.AssigneeID != "" {
		where = append(where, "id IN (SELECT task_id FROM task_assignees WHERE user_id = ?)")
		args = append(args, f.AssigneeID)
	}
	if f.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, f.CreatedBy)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.NotStatus != "" {
		where = append(where, "status <> ?")
		args = append(args, string(f.NotStatus))
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.Project != "" {
		where = append(where, "project = ?")
		args = append(args, f.Project)
	}
	if f.TitleContains != "" {
		where = append(where, foldFunc+`(title) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.TitleContains))
	}
	if f.DueBefore != nil {
		where = append(where, "due_date IS NOT NULL AND due_date < ?")
		args = append(args, encodeTime(*f.DueBefore))
	}
	if f.DueFrom != nil {
		where = append(where, "due_date IS NOT NULL AND due_date >= ?")
		args = append(args, encodeTime(*f.DueFrom))
	}
	if f.DueTo != nil {
		where = append(where, "due_date IS NOT NULL AND due_date <= ?")
		args = append(args, encodeTime(*f.DueTo))
	}
	if f.UpdatedSince != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, encodeTime(*f.UpdatedSince))
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// FindTasks returns matching tasks, newest first.
func (q *queries) FindTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	where, args := taskWhere(f)
	query := "SELECT " + taskColumns + " FROM tasks" + where + " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (q *queries) CountTasks(ctx context.Context, f TaskFilter) (int, error) {
	where, args := taskWhere(f)
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// DeleteTask removes only the task row. Related rows are removed by the
// caller's cascade plan in the same transaction.
func (q *queries) DeleteTask(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("task", id)
	}
	return nil
}
