// Package events carries taskflow domain events as CloudEvents over the
// application's observer subject, and provides the module that logs and
// optionally forwards them to Redis.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Event type constants, reverse domain notation.
const (
	TaskCreated        = "com.taskflow.task.created"
	TaskUpdated        = "com.taskflow.task.updated"
	TaskStatusChanged  = "com.taskflow.task.status_changed"
	TaskDeleted        = "com.taskflow.task.deleted"
	TaskAssigned       = "com.taskflow.task.assigned"
	BlockerCreated     = "com.taskflow.blocker.created"
	BlockerUpdated     = "com.taskflow.blocker.updated"
	BlockerDeleted     = "com.taskflow.blocker.deleted"
	DependencyCreated  = "com.taskflow.dependency.created"
	DependencyDeleted  = "com.taskflow.dependency.deleted"
	IntakeProcessed    = "com.taskflow.intake.processed"
	NotificationSent   = "com.taskflow.notification.sent"
	NotificationFailed = "com.taskflow.notification.failed"
	JobCompleted       = "com.taskflow.job.completed"
	JobFailed          = "com.taskflow.job.failed"
	ServerStarted      = "com.taskflow.server.started"
	ServerStopped      = "com.taskflow.server.stopped"
)

// AllTypes lists every event type taskflow emits.
func AllTypes() []string {
	return []string{
		TaskCreated, TaskUpdated, TaskStatusChanged, TaskDeleted, TaskAssigned,
		BlockerCreated, BlockerUpdated, BlockerDeleted,
		DependencyCreated, DependencyDeleted,
		IntakeProcessed, NotificationSent, NotificationFailed,
		JobCompleted, JobFailed,
		ServerStarted, ServerStopped,
	}
}

// ErrNoSubject is returned by EmitEvent before the subject is bound.
var ErrNoSubject = errors.New("no subject available for event emission")

// Publisher is what domain services depend on.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]any)
}

// Emitter publishes CloudEvents through a modular.Subject. Until a subject
// is bound every publish is a silent no-op, so services work unchanged in
// non-observable applications and in tests.
type Emitter struct {
	source  string
	logger  modular.Logger
	mu      sync.RWMutex
	subject modular.Subject
}

// NewEmitter creates an emitter whose events carry the given source.
func NewEmitter(source string, logger modular.Logger) *Emitter {
	return &Emitter{source: source, logger: logger}
}

// Bind attaches the subject. Modules call it from RegisterObservers.
func (e *Emitter) Bind(subject modular.Subject) {
	e.mu.Lock()
	e.subject = subject
	e.mu.Unlock()
}

// SetLogger replaces the logger used to report emission failures.
func (e *Emitter) SetLogger(logger modular.Logger) {
	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()
}

// EmitEvent sends a prepared event.
func (e *Emitter) EmitEvent(ctx context.Context, event cloudevents.Event) error {
	e.mu.RLock()
	subject := e.subject
	e.mu.RUnlock()
	if subject == nil {
		return ErrNoSubject
	}
	if err := subject.NotifyObservers(ctx, event); err != nil {
		return fmt.Errorf("failed to notify observers: %w", err)
	}
	return nil
}

// Publish builds and emits an event. Observers run after the request may
// have finished, so cancellation is detached from ctx.
func (e *Emitter) Publish(ctx context.Context, eventType string, data map[string]any) {
	event := modular.NewCloudEvent(eventType, e.source, data, nil)
	err := e.EmitEvent(context.WithoutCancel(ctx), event)
	if err == nil || errors.Is(err, ErrNoSubject) {
		return
	}
	e.mu.RLock()
	logger := e.logger
	e.mu.RUnlock()
	if logger != nil {
		logger.Warn("Failed to emit event", "eventType", eventType, "error", err)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, string, map[string]any) {}
