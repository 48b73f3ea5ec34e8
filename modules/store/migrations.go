package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"time"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateTableName validates table name to prevent SQL injection
func validateTableName(tableName string) error {
	if !tableNamePattern.MatchString(tableName) {
		return ErrInvalidTableName
	}
	return nil
}

// Migration is one forward schema step.
type Migration struct {
	ID      string
	Version string
	SQL     string
}

// Migrator applies migrations once each, tracking them in a table.
type Migrator struct {
	db        *sql.DB
	tableName string
}

// NewMigrator creates a migrator using the schema_migrations table.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db, tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	if err := validateTableName(m.tableName); err != nil {
		return err
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`, m.tableName)
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// Applied returns the IDs of migrations already recorded.
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan migration id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Apply runs every migration not yet recorded, in version order, each in
// its own transaction.
func (m *Migrator) Apply(ctx context.Context, migrations []Migration) error {
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, id := range applied {
		done[id] = true
	}

	pending := make([]Migration, 0, len(migrations))
	for _, mig := range migrations {
		if !done[mig.ID] {
			pending = append(pending, mig)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, mig := range pending {
		if err := m.run(ctx, mig); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) run(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", mig.ID, err)
	}
	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to apply migration %s: %w", mig.ID, err)
	}
	record := fmt.Sprintf("INSERT INTO %s (id, version, applied_at) VALUES (?, ?, ?)", m.tableName)
	if _, err := tx.ExecContext(ctx, record, mig.ID, mig.Version, encodeTime(time.Now())); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", mig.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", mig.ID, err)
	}
	return nil
}

// Migrations returns the taskflow schema.
func Migrations() []Migration {
	return []Migration{
		{
			ID:      "0001_users",
			Version: "0001",
			SQL: `CREATE TABLE users (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				phone TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL DEFAULT 'team_member',
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL
			);
			CREATE INDEX idx_users_phone ON users(phone);`,
		},
		{
			ID:      "0002_tasks",
			Version: "0002",
			SQL: `CREATE TABLE tasks (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				due_date TEXT,
				status TEXT NOT NULL,
				priority TEXT NOT NULL,
				created_by TEXT NOT NULL,
				project TEXT NOT NULL DEFAULT '',
				tags TEXT NOT NULL DEFAULT '[]',
				estimated_hours REAL NOT NULL DEFAULT 0,
				actual_hours REAL NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);
			CREATE INDEX idx_tasks_status ON tasks(status);
			CREATE INDEX idx_tasks_due_date ON tasks(due_date);
			CREATE INDEX idx_tasks_created_by ON tasks(created_by);`,
		},
		{
			ID:      "0003_task_assignees",
			Version: "0003",
			SQL: `CREATE TABLE task_assignees (
				id TEXT PRIMARY KEY,
				task_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				assigned_by TEXT NOT NULL,
				assigned_at TEXT NOT NULL,
				UNIQUE (task_id, user_id)
			);
			CREATE INDEX idx_task_assignees_user ON task_assignees(user_id);`,
		},
		{
			ID:      "0004_blockers",
			Version: "0004",
			SQL: `CREATE TABLE blockers (
				id TEXT PRIMARY KEY,
				task_id TEXT NOT NULL,
				reported_by TEXT NOT NULL,
				description TEXT NOT NULL,
				type TEXT NOT NULL,
				severity TEXT NOT NULL,
				status TEXT NOT NULL,
				resolved_by TEXT NOT NULL DEFAULT '',
				resolved_at TEXT,
				resolution TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);
			CREATE INDEX idx_blockers_task_status ON blockers(task_id, status);`,
		},
		{
			ID:      "0005_task_dependencies",
			Version: "0005",
			SQL: `CREATE TABLE task_dependencies (
				id TEXT PRIMARY KEY,
				task_id TEXT NOT NULL,
				blocked_by_task_id TEXT NOT NULL,
				type TEXT NOT NULL,
				created_by TEXT NOT NULL,
				created_at TEXT NOT NULL,
				UNIQUE (task_id, blocked_by_task_id)
			);
			CREATE INDEX idx_task_dependencies_blocked_by ON task_dependencies(blocked_by_task_id);`,
		},
	}
}
