package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/taskflow/modules/reminders"
)

type jobReportResponse struct {
	Message string              `json:"message"`
	Sent    int                 `json:"sent"`
	Failed  int                 `json:"failed"`
	Report  reminders.JobReport `json:"report"`
}

func reportResponse(msg string, rep reminders.JobReport) jobReportResponse {
	failed := rep.Failed()
	return jobReportResponse{
		Message: msg,
		Sent:    len(rep.Deliveries) - failed,
		Failed:  failed,
		Report:  rep,
	}
}

func (s *server) scheduler(w http.ResponseWriter, r *http.Request) (*reminders.Handle, bool) {
	if s.deps.Scheduler == nil {
		s.writeError(w, r, fmt.Errorf("%w: scheduler", ErrUnavailable))
		return nil, false
	}
	return s.deps.Scheduler, true
}

func (s *server) jobs(w http.ResponseWriter, r *http.Request) (*reminders.Reminders, bool) {
	if s.deps.Jobs == nil {
		s.writeError(w, r, fmt.Errorf("%w: reminder jobs", ErrUnavailable))
		return nil, false
	}
	return s.deps.Jobs, true
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	h, ok := s.scheduler(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": h.List()})
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	h, ok := s.scheduler(w, r)
	if !ok {
		return
	}
	info, err := h.Status(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": info})
}

// runJob runs a job now. A failing job still answers 200 with its error
// recorded; only an unknown or busy job is an HTTP error.
func (s *server) runJob(w http.ResponseWriter, r *http.Request) {
	h, ok := s.scheduler(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	rep, err := h.Run(r.Context(), name)
	if errors.Is(err, reminders.ErrJobNotFound) || errors.Is(err, reminders.ErrJobRunning) {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
	}
	s.logger.Info("Job run on demand", "job", name, "actor", actorFrom(r).ID)
	s.writeJSON(w, http.StatusOK, reportResponse("Job "+name+" finished", rep))
}

func (s *server) pauseJob(w http.ResponseWriter, r *http.Request) {
	h, ok := s.scheduler(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.Pause(name); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, message{Message: "Job " + name + " paused"})
}

func (s *server) resumeJob(w http.ResponseWriter, r *http.Request) {
	h, ok := s.scheduler(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.Resume(name); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, message{Message: "Job " + name + " resumed"})
}

func (s *server) triggerOverdue(w http.ResponseWriter, r *http.Request) {
	jobs, ok := s.jobs(w, r)
	if !ok {
		return
	}
	rep, err := jobs.TriggerOverdue(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reportResponse("Overdue notifications sent", rep))
}

type triggerRequest struct {
	UserID string `json:"userId"`
	Days   int    `json:"days"`
}

// decodeTrigger reads an optional body; the target user defaults to the
// caller.
func (s *server) decodeTrigger(r *http.Request) (triggerRequest, error) {
	var req triggerRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			return req, err
		}
	}
	if req.UserID == "" {
		req.UserID = actorFrom(r).ID
	}
	return req, nil
}

func (s *server) triggerUpcoming(w http.ResponseWriter, r *http.Request) {
	jobs, ok := s.jobs(w, r)
	if !ok {
		return
	}
	req, err := s.decodeTrigger(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := jobs.TriggerUpcoming(r.Context(), req.UserID, req.Days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reportResponse("Upcoming task notifications sent", rep))
}

func (s *server) triggerWeeklySummary(w http.ResponseWriter, r *http.Request) {
	jobs, ok := s.jobs(w, r)
	if !ok {
		return
	}
	req, err := s.decodeTrigger(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := jobs.TriggerWeeklySummary(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reportResponse("Weekly summary sent", rep))
}
