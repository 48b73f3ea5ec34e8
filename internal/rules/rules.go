// Package rules encodes the task lifecycle invariants as pure functions.
//
// Nothing in this package performs I/O. Callers load the relevant state,
// ask the rules what should change, then persist the answer inside one
// store transaction while holding the task's lock.
package rules

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/GoCodeAlone/taskflow/internal/domain"
)

// StatusChange describes the effect a rule has on a task's status.
type StatusChange struct {
	From    domain.Status
	To      domain.Status
	Changed bool
}

func change(from, to domain.Status) StatusChange {
	return StatusChange{From: from, To: to, Changed: from != to}
}

// Apply writes the new status onto the task and reports whether it moved.
func (c StatusChange) Apply(t *domain.Task) bool {
	t.Status = c.To
	return c.Changed
}

// BlockerCreation blocks the task. Severity and type do not matter.
func BlockerCreation(task domain.Task) StatusChange {
	return change(task.Status, domain.StatusBlocked)
}

// BlockerResolution returns the task to pending once no unresolved blockers
// remain. Tasks that are not blocked are left alone.
func BlockerResolution(task domain.Task, remaining int) StatusChange {
	if remaining == 0 && task.Status == domain.StatusBlocked {
		return change(task.Status, domain.StatusPending)
	}
	return change(task.Status, task.Status)
}

// Reconcile restores "blocked iff unresolved > 0" after any blocker write,
// including deletions and a resolved blocker being reopened.
func Reconcile(task domain.Task, unresolved int) StatusChange {
	if unresolved > 0 {
		return BlockerCreation(task)
	}
	return BlockerResolution(task, 0)
}

// StatusUpdate validates a direct status edit. Setting blocked needs at
// least one unresolved blocker; leaving blocked while blockers remain is
// only allowed with override.
func StatusUpdate(task domain.Task, target domain.Status, unresolved int, override bool) (StatusChange, error) {
	if !target.Valid() {
		return StatusChange{}, domain.ErrInvalidStatus
	}
	if target == domain.StatusBlocked {
		if unresolved == 0 {
			return StatusChange{}, domain.ErrNoOpenBlockers
		}
		return change(task.Status, target), nil
	}
	if unresolved > 0 && !override {
		return StatusChange{}, domain.ErrTaskBlocked
	}
	return change(task.Status, target), nil
}

// ValidateDependency rejects self links, exact duplicates and the direct
// mirror of an existing link. Longer cycles are not searched for.
func ValidateDependency(taskID, blockedByID string, existing []domain.Dependency) error {
	if taskID == blockedByID {
		return domain.ErrSelfDependency
	}
	for _, d := range existing {
		if d.TaskID == taskID && d.BlockedByTaskID == blockedByID {
			return domain.ErrDuplicateDependency
		}
		if d.TaskID == blockedByID && d.BlockedByTaskID == taskID {
			return domain.ErrCircularDependency
		}
	}
	return nil
}

// CascadePlan lists every record removed together with a task.
type CascadePlan struct {
	TaskID        string
	AssignmentIDs []string
	BlockerIDs    []string
	DependencyIDs []string
}

// CascadeDelete selects the records that reference taskID. Dependencies
// match on either endpoint.
func CascadeDelete(taskID string, assignments []domain.Assignment, blockers []domain.Blocker, deps []domain.Dependency) CascadePlan {
	plan := CascadePlan{TaskID: taskID}
	for _, a := range assignments {
		if a.TaskID == taskID {
			plan.AssignmentIDs = append(plan.AssignmentIDs, a.ID)
		}
	}
	for _, b := range blockers {
		if b.TaskID == taskID {
			plan.BlockerIDs = append(plan.BlockerIDs, b.ID)
		}
	}
	for _, d := range deps {
		if d.TaskID == taskID || d.BlockedByTaskID == taskID {
			plan.DependencyIDs = append(plan.DependencyIDs, d.ID)
		}
	}
	return plan
}

// CanMutateTask allows admins, the creator and any assignee.
func CanMutateTask(task domain.Task, actor domain.Actor, assigned bool) bool {
	return actor.IsAdmin() || task.CreatedBy == actor.ID || assigned
}

// CanDeleteTask allows admins and the creator.
func CanDeleteTask(task domain.Task, actor domain.Actor) bool {
	return actor.IsAdmin() || task.CreatedBy == actor.ID
}

// CanView allows admins, the creator and any assignee.
func CanView(task domain.Task, actor domain.Actor, assigned bool) bool {
	return CanMutateTask(task, actor, assigned)
}

// Recipients picks who hears about a change. The actor is skipped except
// for completions, and users without a phone or marked inactive are dropped.
func Recipients(assignees []domain.User, actorID string, kind domain.EventKind) []domain.User {
	out := make([]domain.User, 0, len(assignees))
	seen := make(map[string]struct{}, len(assignees))
	for _, u := range assignees {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		if !u.Active || u.Phone == "" {
			continue
		}
		if u.ID == actorID && kind != domain.EventCompleted {
			continue
		}
		out = append(out, u)
	}
	return out
}

// NotificationKind maps a status transition to its message template.
func NotificationKind(target domain.Status) domain.EventKind {
	switch target {
	case domain.StatusCompleted:
		return domain.EventCompleted
	case domain.StatusBlocked:
		return domain.EventBlocked
	default:
		return domain.EventUpdated
	}
}

// IsOverdue reports an incomplete task whose due date has passed.
func IsOverdue(task domain.Task, now time.Time) bool {
	return task.DueDate != nil && task.DueDate.Before(now) && task.Status != domain.StatusCompleted
}

// DueWithin reports an incomplete task due in [now, now+window].
func DueWithin(task domain.Task, now time.Time, window time.Duration) bool {
	if task.DueDate == nil || task.Status == domain.StatusCompleted {
		return false
	}
	due := *task.DueDate
	return !due.Before(now) && !due.After(now.Add(window))
}

// BlockedDays is the number of whole days since the task last changed.
func BlockedDays(task domain.Task, now time.Time) int {
	if task.UpdatedAt.IsZero() || now.Before(task.UpdatedAt) {
		return 0
	}
	return int(now.Sub(task.UpdatedAt) / (24 * time.Hour))
}

// NeedsEscalation reports a task blocked for at least minDays.
func NeedsEscalation(task domain.Task, now time.Time, minDays int) bool {
	return task.Status == domain.StatusBlocked && BlockedDays(task, now) >= minDays
}

// Stats counts tasks by status. CompletionRate is a rounded percentage.
func Stats(tasks []domain.Task, now time.Time) domain.TaskStats {
	var s domain.TaskStats
	s.Total = len(tasks)
	for _, t := range tasks {
		switch t.Status {
		case domain.StatusPending:
			s.Pending++
		case domain.StatusInProgress:
			s.InProgress++
		case domain.StatusCompleted:
			s.Completed++
		case domain.StatusBlocked:
			s.Blocked++
		}
		if IsOverdue(t, now) {
			s.Overdue++
		}
	}
	if s.Total > 0 {
		s.CompletionRate = int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
	}
	return s
}

// MatchTitle returns tasks whose title contains fragment, ignoring case.
// An empty fragment matches nothing.
func MatchTitle(tasks []domain.Task, fragment string) []domain.Task {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return nil
	}
	var out []domain.Task
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), needle) {
			out = append(out, t)
		}
	}
	return out
}

// SortByDue orders tasks by due date, undated tasks last.
func SortByDue(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].DueDate, tasks[j].DueDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}
