package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

const userColumns = "id, name, email, phone, role, is_active, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u         domain.User
		role      string
		active    int
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role, &active, &createdAt); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	u.Active = active != 0
	t, err := decodeTime(createdAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to decode user created_at: %w", err)
	}
	u.CreatedAt = t
	return u, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NormalizePhone strips formatting so "+1 (555) 000-1234" and "15550001234"
// compare equal.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}

func (q *queries) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.Role == "" {
		u.Role = domain.RoleTeamMember
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = q.now()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Phone = NormalizePhone(u.Phone)

	_, err := q.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Email, u.Phone, string(u.Role), boolInt(u.Active), encodeTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("%w: %s", ErrDuplicateUser, u.Email)
		}
		return domain.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

func (q *queries) UpdateUser(ctx context.Context, u domain.User) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE users SET name = ?, email = ?, phone = ?, role = ?, is_active = ? WHERE id = ?",
		u.Name, strings.ToLower(strings.TrimSpace(u.Email)), NormalizePhone(u.Phone), string(u.Role), boolInt(u.Active), u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("user", u.ID)
	}
	return nil
}

func (q *queries) getUserWhere(ctx context.Context, entityKey, where string, arg any) (domain.User, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.NotFound("user", entityKey)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (q *queries) GetUser(ctx context.Context, id string) (domain.User, error) {
	return q.getUserWhere(ctx, id, "id = ?", id)
}

// FindUserByPhone matches on the normalized number.
func (q *queries) FindUserByPhone(ctx context.Context, phone string) (domain.User, error) {
	norm := NormalizePhone(phone)
	if norm == "" {
		return domain.User{}, domain.NotFound("user", phone)
	}
	return q.getUserWhere(ctx, phone, "phone = ?", norm)
}

func (q *queries) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return q.getUserWhere(ctx, email, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// FindUsersByEmails returns the users that exist; unknown emails are skipped.
func (q *queries) FindUsersByEmails(ctx context.Context, emails []string) ([]domain.User, error) {
	norm := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			norm = append(norm, e)
		}
	}
	if len(norm) == 0 {
		return nil, nil
	}
	query := "SELECT " + userColumns + " FROM users WHERE email IN (" + placeholders(len(norm)) + ") ORDER BY email"
	return q.queryUsers(ctx, query, stringArgs(norm)...)
}

func (q *queries) FindUsers(ctx context.Context, f UserFilter) ([]domain.User, error) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if f.RequirePhone {
		where = append(where, "phone <> ''")
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, string(f.Role))
	}
	query := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	return q.queryUsers(ctx, query, args...)
}

func (q *queries) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
