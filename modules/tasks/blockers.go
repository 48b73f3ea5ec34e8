package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/internal/rules"
	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/store"
)

// NewBlocker is the input to CreateBlocker.
type NewBlocker struct {
	TaskID      string `json:"taskId"`
	ReportedBy  string `json:"-"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
}

// BlockerUpdate is a partial blocker update.
type BlockerUpdate struct {
	Description *string `json:"description"`
	Type        *string `json:"type"`
	Severity    *string `json:"severity"`
	Status      *string `json:"status"`
	Resolution  *string `json:"resolution"`
}

// BlockerResult is a blocker write together with its task after
// reconciliation.
type BlockerResult struct {
	Blocker domain.Blocker     `json:"blocker"`
	Task    domain.Task        `json:"task"`
	Change  rules.StatusChange `json:"-"`
}

// CreateBlocker records a blocker and blocks its task.
func (s *Service) CreateBlocker(ctx context.Context, in NewBlocker) (BlockerResult, error) {
	typ, err := domain.ParseBlockerType(in.Type)
	if err != nil {
		return BlockerResult{}, err
	}
	severity, err := domain.ParseSeverity(in.Severity)
	if err != nil {
		return BlockerResult{}, err
	}
	b := domain.Blocker{
		TaskID:      in.TaskID,
		ReportedBy:  in.ReportedBy,
		Description: strings.TrimSpace(in.Description),
		Type:        typ,
		Severity:    severity,
		Status:      domain.BlockerOpen,
	}
	if err := domain.ValidateBlocker(b); err != nil {
		return BlockerResult{}, err
	}

	var res BlockerResult
	err = s.withTask(ctx, in.TaskID, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, in.TaskID)
		if err != nil {
			return err
		}
		created, err := tx.InsertBlocker(ctx, b)
		if err != nil {
			return err
		}
		change := rules.BlockerCreation(task)
		if change.Apply(&task) {
			if task, err = tx.UpdateTask(ctx, task); err != nil {
				return err
			}
		}
		res = BlockerResult{Blocker: created, Task: task, Change: change}
		return nil
	})
	if err != nil {
		return BlockerResult{}, err
	}

	s.publisher.Publish(ctx, events.BlockerCreated, map[string]any{
		"blockerId": res.Blocker.ID,
		"taskId":    res.Task.ID,
		"severity":  string(res.Blocker.Severity),
		"actor":     in.ReportedBy,
	})
	s.publishStatus(ctx, res.Task, res.Change, in.ReportedBy, "blocker_created")
	return res, nil
}

// UpdateBlocker edits a blocker and reconciles its task's status. A
// blocker moving to resolved is stamped with the actor and time; one
// reopened loses both.
func (s *Service) UpdateBlocker(ctx context.Context, actor domain.Actor, id string, upd BlockerUpdate) (BlockerResult, error) {
	current, err := s.store.GetBlocker(ctx, id)
	if err != nil {
		return BlockerResult{}, err
	}

	var res BlockerResult
	err = s.withTask(ctx, current.TaskID, func(tx store.Tx) error {
		b, err := tx.GetBlocker(ctx, id)
		if err != nil {
			return err
		}
		wasUnresolved := b.Status.Unresolved()
		if err := s.applyBlockerFields(&b, upd); err != nil {
			return err
		}
		switch {
		case wasUnresolved && !b.Status.Unresolved():
			now := s.now()
			b.ResolvedBy = actor.ID
			b.ResolvedAt = &now
		case !wasUnresolved && b.Status.Unresolved():
			b.ResolvedBy = ""
			b.ResolvedAt = nil
		}
		if err := domain.ValidateBlocker(b); err != nil {
			return err
		}
		if b, err = tx.UpdateBlocker(ctx, b); err != nil {
			return err
		}
		task, change, err := reconcile(ctx, tx, b.TaskID)
		if err != nil {
			return err
		}
		res = BlockerResult{Blocker: b, Task: task, Change: change}
		return nil
	})
	if err != nil {
		return BlockerResult{}, err
	}

	s.publisher.Publish(ctx, events.BlockerUpdated, map[string]any{
		"blockerId": id,
		"taskId":    res.Task.ID,
		"status":    string(res.Blocker.Status),
		"actor":     actor.ID,
	})
	s.publishStatus(ctx, res.Task, res.Change, actor.ID, "blocker_updated")
	return res, nil
}

// ResolveBlocker marks a blocker resolved. When it was the last open
// blocker on a blocked task, the task returns to pending.
func (s *Service) ResolveBlocker(ctx context.Context, actor domain.Actor, id, resolution string) (BlockerResult, error) {
	status := string(domain.BlockerResolved)
	upd := BlockerUpdate{Status: &status}
	if resolution = strings.TrimSpace(resolution); resolution != "" {
		upd.Resolution = &resolution
	}
	return s.UpdateBlocker(ctx, actor, id, upd)
}

// DeleteBlocker removes a blocker and reconciles its task. Admins and the
// reporter may delete.
func (s *Service) DeleteBlocker(ctx context.Context, actor domain.Actor, id string) (BlockerResult, error) {
	current, err := s.store.GetBlocker(ctx, id)
	if err != nil {
		return BlockerResult{}, err
	}
	if !actor.IsAdmin() && current.ReportedBy != actor.ID {
		return BlockerResult{}, fmt.Errorf("%w: cannot delete blocker %s", domain.ErrForbidden, id)
	}

	var res BlockerResult
	err = s.withTask(ctx, current.TaskID, func(tx store.Tx) error {
		if err := tx.DeleteBlockers(ctx, id); err != nil {
			return err
		}
		task, change, err := reconcile(ctx, tx, current.TaskID)
		if err != nil {
			return err
		}
		res = BlockerResult{Blocker: current, Task: task, Change: change}
		return nil
	})
	if err != nil {
		return BlockerResult{}, err
	}

	s.publisher.Publish(ctx, events.BlockerDeleted, map[string]any{
		"blockerId": id,
		"taskId":    current.TaskID,
		"actor":     actor.ID,
	})
	s.publishStatus(ctx, res.Task, res.Change, actor.ID, "blocker_deleted")
	return res, nil
}

// ListBlockers returns blockers matching f, newest first.
func (s *Service) ListBlockers(ctx context.Context, f store.BlockerFilter) ([]domain.Blocker, error) {
	return s.store.FindBlockers(ctx, f)
}

// GetBlocker loads one blocker.
func (s *Service) GetBlocker(ctx context.Context, id string) (domain.Blocker, error) {
	return s.store.GetBlocker(ctx, id)
}

func (s *Service) applyBlockerFields(b *domain.Blocker, upd BlockerUpdate) error {
	if upd.Description != nil {
		b.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Type != nil {
		t, err := domain.ParseBlockerType(*upd.Type)
		if err != nil {
			return err
		}
		b.Type = t
	}
	if upd.Severity != nil {
		sev, err := domain.ParseSeverity(*upd.Severity)
		if err != nil {
			return err
		}
		b.Severity = sev
	}
	if upd.Status != nil {
		st, err := domain.ParseBlockerStatus(*upd.Status)
		if err != nil {
			return err
		}
		b.Status = st
	}
	if upd.Resolution != nil {
		b.Resolution = strings.TrimSpace(*upd.Resolution)
	}
	return nil
}

// reconcile recounts unresolved blockers and brings the task's status in
// line. It must run inside the task's lock.
func reconcile(ctx context.Context, tx store.Tx, taskID string) (domain.Task, rules.StatusChange, error) {
	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, rules.StatusChange{}, err
	}
	unresolved, err := tx.CountUnresolvedBlockers(ctx, taskID)
	if err != nil {
		return domain.Task{}, rules.StatusChange{}, err
	}
	change := rules.Reconcile(task, unresolved)
	if change.Apply(&task) {
		if task, err = tx.UpdateTask(ctx, task); err != nil {
			return domain.Task{}, rules.StatusChange{}, err
		}
	}
	return task, change, nil
}
