package tasks

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/internal/rules"
	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/store"
)

// NewDependency is the input to CreateDependency.
type NewDependency struct {
	TaskID          string `json:"taskId"`
	BlockedByTaskID string `json:"blockedByTaskId"`
	Type            string `json:"type"`
	CreatedBy       string `json:"-"`
}

func pairLockKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dep:" + a + ":" + b
}

// CreateDependency links two existing tasks. Self links, duplicates and
// the mirror of an existing link are rejected.
func (s *Service) CreateDependency(ctx context.Context, in NewDependency) (domain.Dependency, error) {
	typ, err := domain.ParseDependencyType(in.Type)
	if err != nil {
		return domain.Dependency{}, err
	}
	if err := rules.ValidateDependency(in.TaskID, in.BlockedByTaskID, nil); err != nil {
		return domain.Dependency{}, err
	}

	var dep domain.Dependency
	err = store.WithLock(ctx, s.locker, pairLockKey(in.TaskID, in.BlockedByTaskID), func() error {
		return s.store.RunAtomically(ctx, func(tx store.Tx) error {
			if _, err := tx.GetTask(ctx, in.TaskID); err != nil {
				return err
			}
			if _, err := tx.GetTask(ctx, in.BlockedByTaskID); err != nil {
				return err
			}
			existing, err := tx.FindDependencies(ctx, store.DependencyFilter{Touching: in.TaskID})
			if err != nil {
				return err
			}
			if err := rules.ValidateDependency(in.TaskID, in.BlockedByTaskID, existing); err != nil {
				return err
			}
			dep, err = tx.InsertDependency(ctx, domain.Dependency{
				TaskID:          in.TaskID,
				BlockedByTaskID: in.BlockedByTaskID,
				Type:            typ,
				CreatedBy:       in.CreatedBy,
			})
			return err
		})
	})
	if err != nil {
		return domain.Dependency{}, err
	}
	s.publisher.Publish(ctx, events.DependencyCreated, map[string]any{
		"dependencyId":    dep.ID,
		"taskId":          dep.TaskID,
		"blockedByTaskId": dep.BlockedByTaskID,
		"actor":           in.CreatedBy,
	})
	return dep, nil
}

// ListDependencies returns dependencies matching f.
func (s *Service) ListDependencies(ctx context.Context, f store.DependencyFilter) ([]domain.Dependency, error) {
	return s.store.FindDependencies(ctx, f)
}

// DeleteDependency removes a link. Admins, the link's creator and anyone
// who may edit the dependent task may delete it.
func (s *Service) DeleteDependency(ctx context.Context, actor domain.Actor, id string) error {
	dep, err := s.store.GetDependency(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && dep.CreatedBy != actor.ID {
		task, err := s.store.GetTask(ctx, dep.TaskID)
		if err != nil {
			return err
		}
		assigned, err := s.store.IsAssigned(ctx, dep.TaskID, actor.ID)
		if err != nil {
			return err
		}
		if !rules.CanMutateTask(task, actor, assigned) {
			return fmt.Errorf("%w: cannot delete dependency %s", domain.ErrForbidden, id)
		}
	}
	if err := s.store.DeleteDependencies(ctx, id); err != nil {
		return err
	}
	s.publisher.Publish(ctx, events.DependencyDeleted, map[string]any{
		"dependencyId": id,
		"taskId":       dep.TaskID,
		"actor":        actor.ID,
	})
	return nil
}
