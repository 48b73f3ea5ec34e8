// Package domain holds the entities shared by every taskflow module: tasks,
// blockers, dependencies, assignments and the users that own them.
package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// Valid reports whether s is a known task status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// ParseStatus accepts the canonical value plus the spaced and dashed
// spellings people type in chat ("in progress", "in-progress").
func ParseStatus(v string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s := Status(norm)
	if !s.Valid() {
		return "", invalid(ErrInvalidStatus, v)
	}
	return s, nil
}

// Priority ranks task urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParsePriority returns PriorityMedium for an empty value.
func ParsePriority(v string) (Priority, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	if norm == "" {
		return PriorityMedium, nil
	}
	p := Priority(norm)
	if !p.Valid() {
		return "", invalid(ErrInvalidPriority, v)
	}
	return p, nil
}

// Role separates administrators from regular team members.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTeamMember Role = "team_member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeamMember
}

// BlockerType classifies what is holding a task up.
type BlockerType string

const (
	BlockerTechnical  BlockerType = "technical"
	BlockerResource   BlockerType = "resource"
	BlockerDependency BlockerType = "dependency"
	BlockerExternal   BlockerType = "external"
	BlockerOther      BlockerType = "other"
)

func (t BlockerType) Valid() bool {
	switch t {
	case BlockerTechnical, BlockerResource, BlockerDependency, BlockerExternal, BlockerOther:
		return true
	}
	return false
}

// ParseBlockerType returns BlockerOther for an empty value.
func ParseBlockerType(v string) (BlockerType, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	if norm == "" {
		return BlockerOther, nil
	}
	t := BlockerType(norm)
	if !t.Valid() {
		return "", invalid(ErrInvalidBlockerType, v)
	}
	return t, nil
}

// Severity grades a blocker.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity returns SeverityMedium for an empty value.
func ParseSeverity(v string) (Severity, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	if norm == "" {
		return SeverityMedium, nil
	}
	s := Severity(norm)
	if !s.Valid() {
		return "", invalid(ErrInvalidSeverity, v)
	}
	return s, nil
}

// BlockerStatus tracks a blocker from report to resolution.
type BlockerStatus string

const (
	BlockerOpen       BlockerStatus = "open"
	BlockerInProgress BlockerStatus = "in_progress"
	BlockerResolved   BlockerStatus = "resolved"
)

func (s BlockerStatus) Valid() bool {
	switch s {
	case BlockerOpen, BlockerInProgress, BlockerResolved:
		return true
	}
	return false
}

// Unresolved reports whether the blocker still holds its task.
func (s BlockerStatus) Unresolved() bool {
	return s == BlockerOpen || s == BlockerInProgress
}

// ParseBlockerStatus returns BlockerOpen for an empty value.
func ParseBlockerStatus(v string) (BlockerStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	if norm == "" {
		return BlockerOpen, nil
	}
	s := BlockerStatus(norm)
	if !s.Valid() {
		return "", invalid(ErrInvalidBlockerStatus, v)
	}
	return s, nil
}

// DependencyType follows the usual project-scheduling link kinds.
type DependencyType string

const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
	StartToFinish  DependencyType = "start_to_finish"
)

func (t DependencyType) Valid() bool {
	switch t {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// ParseDependencyType returns FinishToStart for an empty value.
func ParseDependencyType(v string) (DependencyType, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	if norm == "" {
		return FinishToStart, nil
	}
	t := DependencyType(norm)
	if !t.Valid() {
		return "", invalid(ErrInvalidDependencyType, v)
	}
	return t, nil
}

// EventKind selects the notification template sent to assignees.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventCompleted EventKind = "completed"
	EventOverdue   EventKind = "overdue"
	EventBlocked   EventKind = "blocked"
	EventReminder  EventKind = "reminder"
)

// User is a person who can own, report on and be assigned to tasks.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	Active    bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Actor returns the identity used for authorization decisions.
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Phone: u.Phone}
}

// Actor is the acting identity behind a request or message.
type Actor struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Phone string `json:"phone,omitempty"`
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Task is the unit of work.
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	CreatedBy      string     `json:"createdBy"`
	Project        string     `json:"project,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	EstimatedHours float64    `json:"estimatedHours,omitempty"`
	ActualHours    float64    `json:"actualHours,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Blocker records an impediment reported against a task.
type Blocker struct {
	ID          string        `json:"id"`
	TaskID      string        `json:"taskId"`
	ReportedBy  string        `json:"reportedBy"`
	Description string        `json:"description"`
	Type        BlockerType   `json:"type"`
	Severity    Severity      `json:"severity"`
	Status      BlockerStatus `json:"status"`
	ResolvedBy  string        `json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time    `json:"resolvedAt,omitempty"`
	Resolution  string        `json:"resolution,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Dependency says TaskID waits on BlockedByTaskID.
type Dependency struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"taskId"`
	BlockedByTaskID string         `json:"blockedByTaskId"`
	Type            DependencyType `json:"type"`
	CreatedBy       string         `json:"createdBy"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// Assignment links a user to a task.
type Assignment struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	UserID     string    `json:"userId"`
	AssignedBy string    `json:"assignedBy"`
	AssignedAt time.Time `json:"assignedAt"`
}

// TaskStats summarises a set of tasks.
type TaskStats struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	InProgress     int `json:"inProgress"`
	Completed      int `json:"completed"`
	Blocked        int `json:"blocked"`
	Overdue        int `json:"overdue"`
	CompletionRate int `json:"completionRate"`
}

// Field limits enforced on create and update.
const (
	MaxTitleLength              = 200
	MaxDescriptionLength        = 2000
	MaxProjectLength            = 100
	MaxBlockerDescriptionLength = 1000
)

// FormatDate renders a due date the way every outbound message shows it.
func FormatDate(t *time.Time, missing string) string {
	if t == nil || t.IsZero() {
		return missing
	}
	return t.Format(DateLayout)
}

// DateLayout is the calendar-date format used on the wire and in messages.
const DateLayout = "2006-01-02"
