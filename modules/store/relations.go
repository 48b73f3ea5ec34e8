package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

// InsertAssignments inserts each assignment; a repeated (task, user) pair
// fails with domain.ErrDuplicateAssignment.
func (q *queries) InsertAssignments(ctx context.Context, as ...domain.Assignment) ([]domain.Assignment, error) {
	out := make([]domain.Assignment, 0, len(as))
	for _, a := range as {
		if a.ID == "" {
			a.ID = newID()
		}
		if a.AssignedAt.IsZero() {
			a.AssignedAt = q.now()
		}
		_, err := q.db.ExecContext(ctx,
			"INSERT INTO task_assignees (id, task_id, user_id, assigned_by, assigned_at) VALUES (?, ?, ?, ?, ?)",
			a.ID, a.TaskID, a.UserID, a.AssignedBy, encodeTime(a.AssignedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: task %s user %s", domain.ErrDuplicateAssignment, a.TaskID, a.UserID)
			}
			return nil, fmt.Errorf("failed to insert assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (q *queries) ListAssignments(ctx context.Context, taskID string) ([]domain.Assignment, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, task_id, user_id, assigned_by, assigned_at FROM task_assignees WHERE task_id = ? ORDER BY assigned_at, id", taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		var (
			a  domain.Assignment
			at string
		)
		if err := rows.Scan(&a.ID, &a.TaskID, &a.UserID, &a.AssignedBy, &at); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if a.AssignedAt, err = decodeTime(at); err != nil {
			return nil, fmt.Errorf("failed to decode assigned_at: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAssignees returns the users assigned to a task.
func (q *queries) ListAssignees(ctx context.Context, taskID string) ([]domain.User, error) {
	cols := "u." + strings.ReplaceAll(userColumns, ", ", ", u.")
	query := "SELECT " + cols + " FROM users u JOIN task_assignees a ON a.user_id = u.id WHERE a.task_id = ? ORDER BY a.assigned_at, u.id"
	return q.queryUsers(ctx, query, taskID)
}

func (q *queries) IsAssigned(ctx context.Context, taskID, userID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM task_assignees WHERE task_id = ? AND user_id = ?", taskID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}
	return n > 0, nil
}

func (q *queries) DeleteAssignments(ctx context.Context, ids ...string) error {
	return q.deleteByIDs(ctx, "task_assignees", ids)
}

const blockerColumns = "id, task_id, reported_by, description, type, severity, status, resolved_by, resolved_at, resolution, created_at, updated_at"

func scanBlocker(row rowScanner) (domain.Blocker, error) {
	var (
		b                     domain.Blocker
		typ, severity, status string
		resolvedAt            sql.NullString
		createdAt, updatedAt  string
	)
	if err := row.Scan(&b.ID, &b.TaskID, &b.ReportedBy, &b.Description, &typ, &severity, &status,
		&b.ResolvedBy, &resolvedAt, &b.Resolution, &createdAt, &updatedAt); err != nil {
		return domain.Blocker{}, err
	}
	b.Type = domain.BlockerType(typ)
	b.Severity = domain.Severity(severity)
	b.Status = domain.BlockerStatus(status)

	var err error
	if b.ResolvedAt, err = decodeTimePtr(resolvedAt); err != nil {
		return domain.Blocker{}, fmt.Errorf("failed to decode resolved_at: %w", err)
	}
	if b.CreatedAt, err = decodeTime(createdAt); err != nil {
		return domain.Blocker{}, fmt.Errorf("failed to decode created_at: %w", err)
	}
	if b.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return domain.Blocker{}, fmt.Errorf("failed to decode updated_at: %w", err)
	}
	return b, nil
}

func (q *queries) InsertBlocker(ctx context.Context, b domain.Blocker) (domain.Blocker, error) {
	if b.ID == "" {
		b.ID = newID()
	}
	now := q.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = b.CreatedAt
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO blockers ("+blockerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		b.ID, b.TaskID, b.ReportedBy, b.Description, string(b.Type), string(b.Severity), string(b.Status),
		b.ResolvedBy, encodeTimePtr(b.ResolvedAt), b.Resolution, encodeTime(b.CreatedAt), encodeTime(b.UpdatedAt))
	if err != nil {
		return domain.Blocker{}, fmt.Errorf("failed to insert blocker: %w", err)
	}
	return b, nil
}

func (q *queries) UpdateBlocker(ctx context.Context, b domain.Blocker) (domain.Blocker, error) {
	b.UpdatedAt = q.now()
	res, err := q.db.ExecContext(ctx,
		`UPDATE blockers SET description = ?, type = ?, severity = ?, status = ?, resolved_by = ?,
			resolved_at = ?, resolution = ?, updated_at = ? WHERE id = ?`,
		b.Description, string(b.Type), string(b.Severity), string(b.Status), b.ResolvedBy,
		encodeTimePtr(b.ResolvedAt), b.Resolution, encodeTime(b.UpdatedAt), b.ID)
	if err != nil {
		return domain.Blocker{}, fmt.Errorf("failed to update blocker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Blocker{}, domain.NotFound("blocker", b.ID)
	}
	return b, nil
}

func (q *queries) GetBlocker(ctx context.Context, id string) (domain.Blocker, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+blockerColumns+" FROM blockers WHERE id = ?", id)
	b, err := scanBlocker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Blocker{}, domain.NotFound("blocker", id)
	}
	if err != nil {
		return domain.Blocker{}, fmt.Errorf("failed to load blocker: %w", err)
	}
	return b, nil
}

func (q *queries) FindBlockers(ctx context.Context, f BlockerFilter) ([]domain.Blocker, error) {
	var (
		where []string
		args  []any
	)
	if f.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Unresolved {
		where = append(where, "status IN (?, ?)")
		args = append(args, string(domain.BlockerOpen), string(domain.BlockerInProgress))
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(f.Severity))
	}
	query := "SELECT " + blockerColumns + " FROM blockers"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blockers: %w", err)
	}
	defer rows.Close()

	var out []domain.Blocker
	for rows.Next() {
		b, err := scanBlocker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocker: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountUnresolvedBlockers counts open and in-progress blockers on a task.
func (q *queries) CountUnresolvedBlockers(ctx context.Context, taskID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM blockers WHERE task_id = ? AND status IN (?, ?)",
		taskID, string(domain.BlockerOpen), string(domain.BlockerInProgress)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count blockers: %w", err)
	}
	return n, nil
}

func (q *queries) DeleteBlockers(ctx context.Context, ids ...string) error {
	return q.deleteByIDs(ctx, "blockers", ids)
}

const dependencyColumns = "id, task_id, blocked_by_task_id, type, created_by, created_at"

func scanDependency(row rowScanner) (domain.Dependency, error) {
	var (
		d         domain.Dependency
		typ       string
		createdAt string
	)
	if err := row.Scan(&d.ID, &d.TaskID, &d.BlockedByTaskID, &typ, &d.CreatedBy, &createdAt); err != nil {
		return domain.Dependency{}, err
	}
	d.Type = domain.DependencyType(typ)
	t, err := decodeTime(createdAt)
	if err != nil {
		return domain.Dependency{}, fmt.Errorf("failed to decode created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

// InsertDependency relies on the unique index as the last line against
// a concurrent duplicate.
func (q *queries) InsertDependency(ctx context.Context, d domain.Dependency) (domain.Dependency, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = q.now()
	}
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO task_dependencies ("+dependencyColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		d.ID, d.TaskID, d.BlockedByTaskID, string(d.Type), d.CreatedBy, encodeTime(d.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Dependency{}, domain.ErrDuplicateDependency
		}
		return domain.Dependency{}, fmt.Errorf("failed to insert dependency: %w", err)
	}
	return d, nil
}

func (q *queries) GetDependency(ctx context.Context, id string) (domain.Dependency, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+dependencyColumns+" FROM task_dependencies WHERE id = ?", id)
	d, err := scanDependency(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Dependency{}, domain.NotFound("dependency", id)
	}
	if err != nil {
		return domain.Dependency{}, fmt.Errorf("failed to load dependency: %w", err)
	}
	return d, nil
}

func (q *queries) FindDependencies(ctx context.Context, f DependencyFilter) ([]domain.Dependency, error) {
	var (
		where []string
		args  []any
	)
	if f.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.BlockedByTaskID != "" {
		where = append(where, "blocked_by_task_id = ?")
		args = append(args, f.BlockedByTaskID)
	}
	if f.Touching != "" {
		where = append(where, "(task_id = ? OR blocked_by_task_id = ?)")
		args = append(args, f.Touching, f.Touching)
	}
	query := "SELECT " + dependencyColumns + " FROM task_dependencies"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	var out []domain.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *queries) DeleteDependencies(ctx context.Context, ids ...string) error {
	return q.deleteByIDs(ctx, "task_dependencies", ids)
}
