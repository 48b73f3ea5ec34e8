package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/internal/rules"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

type createTaskRequest struct {
	tasks.NewTask
	DueDate *flexTime `json:"dueDate"`
}

type updateTaskRequest struct {
	tasks.TaskUpdate
	DueDate *flexTime `json:"dueDate"`
}

type taskResponse struct {
	Message string `json:"message,omitempty"`
	Task    any    `json:"task"`
}

type deleteTaskResponse struct {
	Message      string `json:"message"`
	Assignments  int    `json:"assignments"`
	Blockers     int    `json:"blockers"`
	Dependencies int    `json:"dependencies"`
}

func (s *server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.TaskFilter
	if v := q.Get("status"); v != "" {
		st, err := domain.ParseStatus(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.Statuses = []domain.Status{st}
	}
	if v := q.Get("priority"); v != "" {
		p, err := domain.ParsePriority(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.Priority = p
	}
	f.AssigneeID = q.Get("assignee")
	f.Project = strings.TrimSpace(q.Get("project"))
	f.TitleContains = strings.TrimSpace(q.Get("q"))

	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Tasks.ListTasks(r.Context(), actorFrom(r), f, page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.NewTask.DueDate = req.DueDate.ptr()

	actor := actorFrom(r)
	detail, err := s.deps.Tasks.CreateTask(r.Context(), actor, req.NewTask)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.notify(r.Context(), detail.Task, domain.EventCreated, actor.ID)
	s.writeJSON(w, http.StatusCreated, taskResponse{Message: "Task created successfully", Task: detail})
}

func (s *server) getTask(w http.ResponseWriter, r *http.Request) {
	detail, err := s.deps.Tasks.GetTaskDetail(r.Context(), actorFrom(r), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, taskResponse{Task: detail})
}

func (s *server) updateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.TaskUpdate.DueDate = req.DueDate.ptr()

	actor := actorFrom(r)
	res, err := s.deps.Tasks.UpdateTask(r.Context(), actor, chi.URLParam(r, "taskID"), req.TaskUpdate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.Change.Changed {
		s.notify(r.Context(), res.Task, rules.NotificationKind(res.Change.To), actor.ID)
	}
	s.writeJSON(w, http.StatusOK, taskResponse{Message: "Task updated successfully", Task: res.Task})
}

func (s *server) deleteTask(w http.ResponseWriter, r *http.Request) {
	plan, err := s.deps.Tasks.DeleteTask(r.Context(), actorFrom(r), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, deleteResponse(plan))
}

func deleteResponse(plan rules.CascadePlan) deleteTaskResponse {
	return deleteTaskResponse{
		Message:      "Task deleted successfully",
		Assignments:  len(plan.AssignmentIDs),
		Blockers:     len(plan.BlockerIDs),
		Dependencies: len(plan.DependencyIDs),
	}
}

// taskStats covers the caller's own tasks. Admins get every task, or one
// user's with ?assignee=.
func (s *server) taskStats(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	userID := actor.ID
	if actor.IsAdmin() {
		userID = r.URL.Query().Get("assignee")
	}
	stats, err := s.deps.Tasks.Stats(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *server) upcomingTasks(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", s.config.UpcomingDays)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if days == 0 {
		days = s.config.UpcomingDays
	}
	found, err := s.deps.Tasks.UpcomingTasks(r.Context(), actorFrom(r).ID, time.Duration(days)*24*time.Hour)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if found == nil {
		found = []domain.Task{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"days": days, "tasks": found})
}

// notify messages the task's assignees after a committed change. Failures
// are logged; the change stands.
func (s *server) notify(ctx context.Context, task domain.Task, kind domain.EventKind, actorID string) {
	if _, err := s.deps.Tasks.NotifyAssignees(ctx, task, kind, actorID); err != nil {
		s.logger.Warn("Failed to notify assignees", "taskId", task.ID, "kind", kind, "error", err)
	}
}
