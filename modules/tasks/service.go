// Package tasks applies the lifecycle rules to stored tasks. Every write
// that touches more than one record runs in a single store transaction,
// and writes that can change a task's status hold that task's lock, so
// concurrent blocker resolutions can never leave a task in the wrong state.
//
// The service never sends notifications inside a transaction. Callers use
// NotifyAssignees once a mutation has committed.
package tasks

import (
	"context"
	"time"

	"github.com/GoCodeAlone/modular"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/internal/rules"
	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/store"
)

// Notifier delivers a rendered task notification to each recipient.
// *notify.Dispatcher satisfies it.
type Notifier interface {
	NotifyAll(ctx context.Context, recipients []domain.User, task domain.Task, kind domain.EventKind) []notify.Delivery
}

// Service is the task, blocker and dependency service.
type Service struct {
	store     store.Store
	locker    store.Locker
	publisher events.Publisher
	notifier  Notifier
	logger    modular.Logger
	now       func() time.Time
	pageSize  int
	maxPage   int
}

// Option configures a Service.
type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source used for due-date queries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPageSize sets the default and maximum list page sizes.
func WithPageSize(def, max int) Option {
	return func(s *Service) {
		if def > 0 {
			s.pageSize = def
		}
		if max > 0 {
			s.maxPage = max
		}
	}
}

// NewService creates a service. A nil locker falls back to an in-process
// MemoryLocker.
func NewService(st store.Store, locker store.Locker, logger modular.Logger, opts ...Option) *Service {
	if locker == nil {
		locker = store.NewMemoryLocker()
	}
	s := &Service{
		store:     st,
		locker:    locker,
		publisher: events.Nop{},
		logger:    logger,
		now:       time.Now,
		pageSize:  50,
		maxPage:   100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for read paths that need it directly.
func (s *Service) Store() store.Store { return s.store }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

func taskLockKey(id string) string { return "task:" + id }

// withTask runs fn inside a transaction while holding the task's lock.
func (s *Service) withTask(ctx context.Context, taskID string, fn func(tx store.Tx) error) error {
	return store.WithLock(ctx, s.locker, taskLockKey(taskID), func() error {
		return s.store.RunAtomically(ctx, fn)
	})
}

// NotifyAssignees sends the kind template for task to its assignees,
// skipping the actor unless the task was completed. It must be called
// after the triggering write has committed.
func (s *Service) NotifyAssignees(ctx context.Context, task domain.Task, kind domain.EventKind, actorID string) ([]notify.Delivery, error) {
	if s.notifier == nil {
		return nil, nil
	}
	assignees, err := s.store.ListAssignees(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	recipients := rules.Recipients(assignees, actorID, kind)
	if len(recipients) == 0 {
		return nil, nil
	}
	return s.notifier.NotifyAll(ctx, recipients, task, kind), nil
}

// NotifyUsers sends the kind template to an explicit recipient list.
func (s *Service) NotifyUsers(ctx context.Context, users []domain.User, task domain.Task, kind domain.EventKind) []notify.Delivery {
	if s.notifier == nil {
		return nil
	}
	recipients := rules.Recipients(users, "", kind)
	if len(recipients) == 0 {
		return nil
	}
	return s.notifier.NotifyAll(ctx, recipients, task, kind)
}

func (s *Service) publishStatus(ctx context.Context, task domain.Task, change rules.StatusChange, actorID, cause string) {
	if !change.Changed {
		return
	}
	s.publisher.Publish(ctx, events.TaskStatusChanged, map[string]any{
		"taskId": task.ID,
		"from":   string(change.From),
		"to":     string(change.To),
		"actor":  actorID,
		"cause":  cause,
	})
	s.logger.Debug("Task status changed", "taskId", task.ID, "from", change.From, "to", change.To, "cause", cause)
}
