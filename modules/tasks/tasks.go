package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/internal/rules"
	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/store"
)

// NewTask is the input to CreateTask.
type NewTask struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	DueDate        *time.Time `json:"dueDate"`
	Priority       string     `json:"priority"`
	Project        string     `json:"project"`
	Tags           []string   `json:"tags"`
	EstimatedHours float64    `json:"estimatedHours"`
	// AssigneeIDs must name existing users.
	AssigneeIDs []string `json:"assignees"`
	// AssigneeEmails that match no user are dropped.
	AssigneeEmails []string `json:"assigneeEmails"`
}

// TaskUpdate is a partial update. Nil fields are left unchanged.
type TaskUpdate struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	DueDate        *time.Time `json:"dueDate"`
	ClearDueDate   bool       `json:"clearDueDate"`
	Status         *string    `json:"status"`
	Priority       *string    `json:"priority"`
	Project        *string    `json:"project"`
	Tags           *[]string  `json:"tags"`
	EstimatedHours *float64   `json:"estimatedHours"`
	ActualHours    *float64   `json:"actualHours"`
	// AssigneeIDs replaces the assignee set when non-nil.
	AssigneeIDs *[]string `json:"assignees"`
	// Override lets an admin move a task out of blocked while blockers
	// remain open. It is ignored for everyone else.
	Override bool `json:"override"`
}

// TaskDetail is a task with its related records.
type TaskDetail struct {
	domain.Task
	Assignees    []domain.User       `json:"assignees"`
	Blockers     []domain.Blocker    `json:"blockers,omitempty"`
	Dependencies []domain.Dependency `json:"dependencies,omitempty"`
}

// UpdateResult reports what an update did.
type UpdateResult struct {
	Task             domain.Task        `json:"task"`
	Change           rules.StatusChange `json:"-"`
	AssigneesChanged bool               `json:"-"`
}

// Pagination describes one page of a list.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Page is one page of tasks.
type Page struct {
	Tasks      []TaskDetail `json:"tasks"`
	Pagination Pagination   `json:"pagination"`
}

// CreateTask inserts the task and its assignments together. With no
// assignee resolved, the actor is assigned.
func (s *Service) CreateTask(ctx context.Context, actor domain.Actor, in NewTask) (TaskDetail, error) {
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return TaskDetail{}, err
	}
	task := domain.Task{
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		DueDate:        in.DueDate,
		Status:         domain.StatusPending,
		Priority:       priority,
		CreatedBy:      actor.ID,
		Project:        strings.TrimSpace(in.Project),
		Tags:           domain.NormalizeTags(in.Tags),
		EstimatedHours: in.EstimatedHours,
	}
	if err := domain.ValidateTask(task); err != nil {
		return TaskDetail{}, err
	}

	var detail TaskDetail
	err = s.store.RunAtomically(ctx, func(tx store.Tx) error {
		users, err := resolveAssignees(ctx, tx, in.AssigneeIDs, in.AssigneeEmails)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			self, err := tx.GetUser(ctx, actor.ID)
			if err != nil {
				return err
			}
			users = []domain.User{self}
		}
		created, err := tx.InsertTask(ctx, task)
		if err != nil {
			return err
		}
		if err := assign(ctx, tx, created.ID, actor.ID, users); err != nil {
			return err
		}
		detail = TaskDetail{Task: created, Assignees: users}
		return nil
	})
	if err != nil {
		return TaskDetail{}, err
	}

	s.publisher.Publish(ctx, events.TaskCreated, map[string]any{
		"taskId":    detail.ID,
		"title":     detail.Title,
		"createdBy": actor.ID,
		"assignees": userIDs(detail.Assignees),
	})
	s.logger.Info("Task created", "taskId", detail.ID, "assignees", len(detail.Assignees))
	return detail, nil
}

// UpdateTask applies a partial update. Status edits go through the
// lifecycle rules under the task's lock.
func (s *Service) UpdateTask(ctx context.Context, actor domain.Actor, id string, upd TaskUpdate) (UpdateResult, error) {
	var res UpdateResult
	err := s.withTask(ctx, id, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		assigned, err := tx.IsAssigned(ctx, id, actor.ID)
		if err != nil {
			return err
		}
		if !rules.CanMutateTask(task, actor, assigned) {
			return fmt.Errorf("%w: cannot update task %s", domain.ErrForbidden, id)
		}
		if err := applyFields(&task, upd); err != nil {
			return err
		}
		change := rules.StatusChange{From: task.Status, To: task.Status}
		if upd.Status != nil {
			target, err := domain.ParseStatus(*upd.Status)
			if err != nil {
				return err
			}
			unresolved, err := tx.CountUnresolvedBlockers(ctx, id)
			if err != nil {
				return err
			}
			change, err = rules.StatusUpdate(task, target, unresolved, upd.Override && actor.IsAdmin())
			if err != nil {
				return err
			}
			change.Apply(&task)
		}
		if err := domain.ValidateTask(task); err != nil {
			return err
		}
		updated, err := tx.UpdateTask(ctx, task)
		if err != nil {
			return err
		}
		res = UpdateResult{Task: updated, Change: change}
		if upd.AssigneeIDs != nil {
			if _, err := replaceAssignees(ctx, tx, id, actor.ID, *upd.AssigneeIDs); err != nil {
				return err
			}
			res.AssigneesChanged = true
		}
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}

	s.publisher.Publish(ctx, events.TaskUpdated, map[string]any{"taskId": id, "actor": actor.ID})
	s.publishStatus(ctx, res.Task, res.Change, actor.ID, "update")
	if res.AssigneesChanged {
		s.publisher.Publish(ctx, events.TaskAssigned, map[string]any{"taskId": id, "actor": actor.ID})
	}
	return res, nil
}

// SetStatus is UpdateTask restricted to a status edit.
func (s *Service) SetStatus(ctx context.Context, actor domain.Actor, id string, status domain.Status) (UpdateResult, error) {
	v := string(status)
	return s.UpdateTask(ctx, actor, id, TaskUpdate{Status: &v})
}

// SetDueDate changes only the due date. Any active actor may move a
// deadline reported through messaging.
func (s *Service) SetDueDate(ctx context.Context, actorID, id string, due *time.Time) (domain.Task, error) {
	var out domain.Task
	err := s.withTask(ctx, id, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		task.DueDate = due
		out, err = tx.UpdateTask(ctx, task)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.publisher.Publish(ctx, events.TaskUpdated, map[string]any{
		"taskId":  id,
		"actor":   actorID,
		"dueDate": domain.FormatDate(due, ""),
	})
	return out, nil
}

// ReplaceAssignees sets the task's assignees to exactly userIDs.
func (s *Service) ReplaceAssignees(ctx context.Context, actor domain.Actor, id string, userIDs []string) ([]domain.User, error) {
	var users []domain.User
	err := s.withTask(ctx, id, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		assigned, err := tx.IsAssigned(ctx, id, actor.ID)
		if err != nil {
			return err
		}
		if !rules.CanMutateTask(task, actor, assigned) {
			return fmt.Errorf("%w: cannot reassign task %s", domain.ErrForbidden, id)
		}
		users, err = replaceAssignees(ctx, tx, id, actor.ID, userIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.TaskAssigned, map[string]any{
		"taskId":    id,
		"actor":     actor.ID,
		"assignees": userIDs,
	})
	return users, nil
}

// DeleteTask removes the task with its assignments, blockers and every
// dependency that references it, all in one transaction.
func (s *Service) DeleteTask(ctx context.Context, actor domain.Actor, id string) (rules.CascadePlan, error) {
	var plan rules.CascadePlan
	err := s.withTask(ctx, id, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if !rules.CanDeleteTask(task, actor) {
			return fmt.Errorf("%w: only the creator or an admin can delete task %s", domain.ErrForbidden, id)
		}
		assignments, err := tx.ListAssignments(ctx, id)
		if err != nil {
			return err
		}
		blockers, err := tx.FindBlockers(ctx, store.BlockerFilter{TaskID: id})
		if err != nil {
			return err
		}
		deps, err := tx.FindDependencies(ctx, store.DependencyFilter{Touching: id})
		if err != nil {
			return err
		}
		plan = rules.CascadeDelete(id, assignments, blockers, deps)
		if err := tx.DeleteAssignments(ctx, plan.AssignmentIDs...); err != nil {
			return err
		}
		if err := tx.DeleteBlockers(ctx, plan.BlockerIDs...); err != nil {
			return err
		}
		if err := tx.DeleteDependencies(ctx, plan.DependencyIDs...); err != nil {
			return err
		}
		return tx.DeleteTask(ctx, id)
	})
	if err != nil {
		return rules.CascadePlan{}, err
	}
	s.publisher.Publish(ctx, events.TaskDeleted, map[string]any{
		"taskId":       id,
		"actor":        actor.ID,
		"assignments":  len(plan.AssignmentIDs),
		"blockers":     len(plan.BlockerIDs),
		"dependencies": len(plan.DependencyIDs),
	})
	s.logger.Info("Task deleted", "taskId", id, "blockers", len(plan.BlockerIDs), "dependencies", len(plan.DependencyIDs))
	return plan, nil
}

// GetTask loads a task without permission checks.
func (s *Service) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return s.store.GetTask(ctx, id)
}

// GetTaskDetail loads a task with assignees, blockers and dependencies.
// Only admins, the creator and assignees may see it.
func (s *Service) GetTaskDetail(ctx context.Context, actor domain.Actor, id string) (TaskDetail, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return TaskDetail{}, err
	}
	assignees, err := s.store.ListAssignees(ctx, id)
	if err != nil {
		return TaskDetail{}, err
	}
	if !rules.CanView(task, actor, containsUser(assignees, actor.ID)) {
		return TaskDetail{}, fmt.Errorf("%w: cannot view task %s", domain.ErrForbidden, id)
	}
	blockers, err := s.store.FindBlockers(ctx, store.BlockerFilter{TaskID: id})
	if err != nil {
		return TaskDetail{}, err
	}
	deps, err := s.store.FindDependencies(ctx, store.DependencyFilter{Touching: id})
	if err != nil {
		return TaskDetail{}, err
	}
	return TaskDetail{Task: task, Assignees: assignees, Blockers: blockers, Dependencies: deps}, nil
}

// ListTasks returns one page of tasks. Non-admins only see tasks they are
// assigned to, whatever the filter asks for.
func (s *Service) ListTasks(ctx context.Context, actor domain.Actor, f store.TaskFilter, page, limit int) (Page, error) {
	if !actor.IsAdmin() {
		f.AssigneeID = actor.ID
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > s.maxPage {
		limit = s.maxPage
	}
	f.Limit, f.Offset = 0, 0
	total, err := s.store.CountTasks(ctx, f)
	if err != nil {
		return Page{}, err
	}
	f.Limit, f.Offset = limit, (page-1)*limit
	found, err := s.store.FindTasks(ctx, f)
	if err != nil {
		return Page{}, err
	}
	details, err := s.withAssignees(ctx, found)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Tasks: details,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

// Stats summarises every task, or only userID's assigned tasks.
func (s *Service) Stats(ctx context.Context, userID string) (domain.TaskStats, error) {
	found, err := s.store.FindTasks(ctx, store.TaskFilter{AssigneeID: userID})
	if err != nil {
		return domain.TaskStats{}, err
	}
	return rules.Stats(found, s.now()), nil
}

// UpcomingTasks lists userID's incomplete tasks due within window,
// soonest first. An empty userID means every user.
func (s *Service) UpcomingTasks(ctx context.Context, userID string, window time.Duration) ([]domain.Task, error) {
	now := s.now()
	to := now.Add(window)
	found, err := s.store.FindTasks(ctx, store.TaskFilter{
		AssigneeID: userID,
		NotStatus:  domain.StatusCompleted,
		DueFrom:    &now,
		DueTo:      &to,
	})
	if err != nil {
		return nil, err
	}
	rules.SortByDue(found)
	return found, nil
}

// OverdueTasks lists incomplete tasks past their due date with assignees.
func (s *Service) OverdueTasks(ctx context.Context) ([]TaskDetail, error) {
	now := s.now()
	found, err := s.store.FindTasks(ctx, store.TaskFilter{
		NotStatus: domain.StatusCompleted,
		DueBefore: &now,
	})
	if err != nil {
		return nil, err
	}
	rules.SortByDue(found)
	return s.withAssignees(ctx, found)
}

// BlockedTasks lists blocked tasks with assignees.
func (s *Service) BlockedTasks(ctx context.Context) ([]TaskDetail, error) {
	found, err := s.store.FindTasks(ctx, store.TaskFilter{Statuses: []domain.Status{domain.StatusBlocked}})
	if err != nil {
		return nil, err
	}
	return s.withAssignees(ctx, found)
}

// UserTasks lists every task assigned to userID.
func (s *Service) UserTasks(ctx context.Context, userID string, f store.TaskFilter) ([]domain.Task, error) {
	f.AssigneeID = userID
	return s.store.FindTasks(ctx, f)
}

// FindByTitle returns the tasks whose title contains fragment, ignoring
// case. A non-empty assigneeID limits the search to that user's tasks.
func (s *Service) FindByTitle(ctx context.Context, fragment, assigneeID string) ([]domain.Task, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, nil
	}
	found, err := s.store.FindTasks(ctx, store.TaskFilter{TitleContains: fragment, AssigneeID: assigneeID})
	if err != nil {
		return nil, err
	}
	return rules.MatchTitle(found, fragment), nil
}

// ResolveTitle is FindByTitle that insists on exactly one match.
func (s *Service) ResolveTitle(ctx context.Context, fragment, assigneeID string) (domain.Task, error) {
	found, err := s.FindByTitle(ctx, fragment, assigneeID)
	if err != nil {
		return domain.Task{}, err
	}
	switch len(found) {
	case 0:
		return domain.Task{}, domain.NotFound("task", fragment)
	case 1:
		return found[0], nil
	default:
		return domain.Task{}, &domain.AmbiguousError{Query: fragment, Candidates: found}
	}
}

func (s *Service) withAssignees(ctx context.Context, found []domain.Task) ([]TaskDetail, error) {
	out := make([]TaskDetail, 0, len(found))
	for _, t := range found {
		assignees, err := s.store.ListAssignees(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, TaskDetail{Task: t, Assignees: assignees})
	}
	return out, nil
}

func applyFields(task *domain.Task, upd TaskUpdate) error {
	if upd.Title != nil {
		task.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Description != nil {
		task.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.ClearDueDate {
		task.DueDate = nil
	} else if upd.DueDate != nil {
		task.DueDate = upd.DueDate
	}
	if upd.Priority != nil {
		p, err := domain.ParsePriority(*upd.Priority)
		if err != nil {
			return err
		}
		task.Priority = p
	}
	if upd.Project != nil {
		task.Project = strings.TrimSpace(*upd.Project)
	}
	if upd.Tags != nil {
		task.Tags = domain.NormalizeTags(*upd.Tags)
	}
	if upd.EstimatedHours != nil {
		task.EstimatedHours = *upd.EstimatedHours
	}
	if upd.ActualHours != nil {
		task.ActualHours = *upd.ActualHours
	}
	return nil
}

// resolveAssignees loads users by ID, failing on unknown IDs, then adds
// users matched by email. Unmatched emails are dropped.
func resolveAssignees(ctx context.Context, q store.Queries, ids, emails []string) ([]domain.User, error) {
	var users []domain.User
	seen := make(map[string]struct{})
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		u, err := q.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		seen[id] = struct{}{}
		users = append(users, u)
	}
	if len(emails) == 0 {
		return users, nil
	}
	matched, err := q.FindUsersByEmails(ctx, emails)
	if err != nil {
		return nil, err
	}
	for _, u := range matched {
		if _, dup := seen[u.ID]; dup || !u.Active {
			continue
		}
		seen[u.ID] = struct{}{}
		users = append(users, u)
	}
	return users, nil
}

func assign(ctx context.Context, q store.Queries, taskID, assignedBy string, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}
	as := make([]domain.Assignment, 0, len(users))
	for _, u := range users {
		as = append(as, domain.Assignment{TaskID: taskID, UserID: u.ID, AssignedBy: assignedBy})
	}
	_, err := q.InsertAssignments(ctx, as...)
	return err
}

func replaceAssignees(ctx context.Context, q store.Queries, taskID, assignedBy string, ids []string) ([]domain.User, error) {
	users, err := resolveAssignees(ctx, q, ids, nil)
	if err != nil {
		return nil, err
	}
	existing, err := q.ListAssignments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	old := make([]string, 0, len(existing))
	for _, a := range existing {
		old = append(old, a.ID)
	}
	if err := q.DeleteAssignments(ctx, old...); err != nil {
		return nil, err
	}
	if err := assign(ctx, q, taskID, assignedBy, users); err != nil {
		return nil, err
	}
	return users, nil
}

func containsUser(users []domain.User, id string) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func userIDs(users []domain.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}
