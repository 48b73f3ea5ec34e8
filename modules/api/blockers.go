package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/internal/rules"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

type blockerResponse struct {
	Message string         `json:"message,omitempty"`
	Blocker domain.Blocker `json:"blocker"`
	Task    domain.Task    `json:"task"`
}

func (s *server) listBlockers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.BlockerFilter{TaskID: q.Get("taskId")}
	if v := q.Get("status"); v != "" {
		st, err := domain.ParseBlockerStatus(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.Status = st
	}
	if v := q.Get("severity"); v != "" {
		sev, err := domain.ParseSeverity(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		f.Severity = sev
	}
	found, err := s.deps.Tasks.ListBlockers(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if found == nil {
		found = []domain.Blocker{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"blockers": found})
}

func (s *server) createBlocker(w http.ResponseWriter, r *http.Request) {
	var in tasks.NewBlocker
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.TaskID == "" {
		s.writeError(w, r, fmt.Errorf("%w: taskId", ErrMissingField))
		return
	}
	actor := actorFrom(r)
	in.ReportedBy = actor.ID
	res, err := s.deps.Tasks.CreateBlocker(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.Change.Changed {
		s.notify(r.Context(), res.Task, domain.EventBlocked, actor.ID)
	}
	s.writeJSON(w, http.StatusCreated, blockerResponse{Message: "Blocker created successfully", Blocker: res.Blocker, Task: res.Task})
}

func (s *server) getBlocker(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Tasks.GetBlocker(r.Context(), chi.URLParam(r, "blockerID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"blocker": b})
}

func (s *server) updateBlocker(w http.ResponseWriter, r *http.Request) {
	var upd tasks.BlockerUpdate
	if err := decodeJSON(r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	actor := actorFrom(r)
	res, err := s.deps.Tasks.UpdateBlocker(r.Context(), actor, chi.URLParam(r, "blockerID"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.Change.Changed {
		s.notify(r.Context(), res.Task, rules.NotificationKind(res.Change.To), actor.ID)
	}
	s.writeJSON(w, http.StatusOK, blockerResponse{Message: "Blocker updated successfully", Blocker: res.Blocker, Task: res.Task})
}

func (s *server) deleteBlocker(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Tasks.DeleteBlocker(r.Context(), actorFrom(r), chi.URLParam(r, "blockerID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, blockerResponse{Message: "Blocker deleted successfully", Blocker: res.Blocker, Task: res.Task})
}

func (s *server) listDependencies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.DependencyFilter{TaskID: q.Get("taskId"), BlockedByTaskID: q.Get("blockedByTaskId")}
	found, err := s.deps.Tasks.ListDependencies(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if found == nil {
		found = []domain.Dependency{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"dependencies": found})
}

func (s *server) createDependency(w http.ResponseWriter, r *http.Request) {
	var in tasks.NewDependency
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.TaskID == "" || in.BlockedByTaskID == "" {
		s.writeError(w, r, fmt.Errorf("%w: taskId and blockedByTaskId", ErrMissingField))
		return
	}
	in.CreatedBy = actorFrom(r).ID
	dep, err := s.deps.Tasks.CreateDependency(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Dependency created successfully",
		"dependency": dep,
	})
}

func (s *server) deleteDependency(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tasks.DeleteDependency(r.Context(), actorFrom(r), chi.URLParam(r, "dependencyID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, message{Message: "Dependency deleted successfully"})
}
