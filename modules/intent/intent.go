// Package intent turns free-form messages into a closed set of task
// operations using an external completion model.
//
// The model is untrusted: its output is extracted, validated against a JSON
// schema and decoded strictly. Anything that does not decode, and any call
// that exceeds the configured timeout, becomes Help.
package intent

import (
	"time"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

// Intent is one parsed operation. The set of implementations is closed.
type Intent interface {
	// Action is the wire name of the operation.
	Action() string
	isIntent()
}

// Wire names for the intent actions.
const (
	ActionCreateTask     = "create_task"
	ActionUpdateStatus   = "update_status"
	ActionQuery          = "query_tasks"
	ActionReportBlocker  = "report_blocker"
	ActionChangeDeadline = "change_deadline"
	ActionReassign       = "reassign"
	ActionHelp           = "help"
)

// CreateTask asks for a new task. Assignees are email addresses.
type CreateTask struct {
	Title       string
	Description string
	DueDate     *time.Time
	Priority    domain.Priority
	Assignees   []string
	Project     string
	Tags        []string
}

// UpdateStatus changes the status of the task whose title contains
// TaskTitle. An empty Status asks for the current status.
type UpdateStatus struct {
	TaskTitle string
	Status    domain.Status
}

// Query lists the sender's tasks, optionally only those with Status.
type Query struct {
	Status domain.Status
}

// Help is returned for unrecognised input and for every parse failure.
type Help struct {
	Reason string
}

// Reassign replaces the assignees of the matched task.
type Reassign struct {
	TaskTitle string
	Assignees []string
}

// ReportBlocker opens a blocker on the matched task.
type ReportBlocker struct {
	TaskTitle string
	Reason    string
}

// ChangeDeadline moves the due date of the matched task. A nil DueDate
// leaves the task unchanged.
type ChangeDeadline struct {
	TaskTitle string
	DueDate   *time.Time
}

func (CreateTask) Action() string     { return ActionCreateTask }
func (UpdateStatus) Action() string   { return ActionUpdateStatus }
func (Query) Action() string          { return ActionQuery }
func (Help) Action() string           { return ActionHelp }
func (Reassign) Action() string       { return ActionReassign }
func (ReportBlocker) Action() string  { return ActionReportBlocker }
func (ChangeDeadline) Action() string { return ActionChangeDeadline }

func (CreateTask) isIntent()     {}
func (UpdateStatus) isIntent()   {}
func (Query) isIntent()          {}
func (Help) isIntent()           {}
func (Reassign) isIntent()       {}
func (ReportBlocker) isIntent()  {}
func (ChangeDeadline) isIntent() {}
