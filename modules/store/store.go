// Package store persists taskflow entities in a SQL database and exposes
// them to other modules through the "store.provider" service.
//
// All multi-record writes go through RunAtomically so a task and its
// assignments, or a blocker and the status change it causes, are committed
// together. Per-task serialization is provided separately by a Locker.
package store

import (
	"context"
	"time"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

// Queries is the set of read and write primitives available both on the
// store itself and inside a transaction.
type Queries interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	UpdateUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	FindUserByPhone(ctx context.Context, phone string) (domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	FindUsersByEmails(ctx context.Context, emails []string) ([]domain.User, error)
	FindUsers(ctx context.Context, f UserFilter) ([]domain.User, error)

	InsertTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	FindTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error)
	CountTasks(ctx context.Context, f TaskFilter) (int, error)
	DeleteTask(ctx context.Context, id string) error

	InsertAssignments(ctx context.Context, as ...domain.Assignment) ([]domain.Assignment, error)
	ListAssignments(ctx context.Context, taskID string) ([]domain.Assignment, error)
	ListAssignees(ctx context.Context, taskID string) ([]domain.User, error)
	IsAssigned(ctx context.Context, taskID, userID string) (bool, error)
	DeleteAssignments(ctx context.Context, ids ...string) error

	InsertBlocker(ctx context.Context, b domain.Blocker) (domain.Blocker, error)
	UpdateBlocker(ctx context.Context, b domain.Blocker) (domain.Blocker, error)
	GetBlocker(ctx context.Context, id string) (domain.Blocker, error)
	FindBlockers(ctx context.Context, f BlockerFilter) ([]domain.Blocker, error)
	CountUnresolvedBlockers(ctx context.Context, taskID string) (int, error)
	DeleteBlockers(ctx context.Context, ids ...string) error

	InsertDependency(ctx context.Context, d domain.Dependency) (domain.Dependency, error)
	GetDependency(ctx context.Context, id string) (domain.Dependency, error)
	FindDependencies(ctx context.Context, f DependencyFilter) ([]domain.Dependency, error)
	DeleteDependencies(ctx context.Context, ids ...string) error
}

// Tx is a Queries bound to one open transaction.
type Tx interface {
	Queries
}

// Store is the entity store service.
type Store interface {
	Queries

	// RunAtomically runs fn in a transaction, committing when fn returns
	// nil and rolling back otherwise.
	RunAtomically(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// TaskFilter narrows FindTasks and CountTasks. Zero fields are ignored.
type TaskFilter struct {
	IDs           []string
	AssigneeID    string
	CreatedBy     string
	Statuses      []domain.Status
	NotStatus     domain.Status
	Priority      domain.Priority
	Project       string
	TitleContains string
	DueBefore     *time.Time
	DueFrom       *time.Time
	DueTo         *time.Time
	UpdatedSince  *time.Time
	Limit         int
	Offset        int
}

// UserFilter narrows FindUsers.
type UserFilter struct {
	ActiveOnly   bool
	RequirePhone bool
	Role         domain.Role
}

// BlockerFilter narrows FindBlockers.
type BlockerFilter struct {
	TaskID     string
	Status     domain.BlockerStatus
	Unresolved bool
	Severity   domain.Severity
}

// DependencyFilter narrows FindDependencies. Touching matches either end.
type DependencyFilter struct {
	TaskID          string
	BlockedByTaskID string
	Touching        string
}
