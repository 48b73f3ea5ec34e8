package tasks

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/store"
)

// ModuleName is the unique identifier for the tasks module.
const ModuleName = "tasks"

// ServiceName is the name under which *Service is registered.
const ServiceName = "tasks.service"

// Config holds list paging limits.
type Config struct {
	PageSize    int `json:"pageSize" yaml:"pageSize" env:"TASKS_PAGE_SIZE" default:"50" desc:"Default tasks per page"`
	MaxPageSize int `json:"maxPageSize" yaml:"maxPageSize" env:"TASKS_MAX_PAGE_SIZE" default:"100" desc:"Largest page a client may request"`
}

// Module wires the service to the store, locker, dispatcher and metrics.
type Module struct {
	config  *Config
	logger  modular.Logger
	emitter *events.Emitter
	service *Service
}

var _ modular.ObservableModule = (*Module)(nil)

func NewModule() *Module {
	return &Module{emitter: events.NewEmitter(ModuleName, nil)}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RegisterConfig(app modular.Application) error {
	if existing, err := app.GetConfigSection(m.Name()); err == nil && existing != nil {
		return nil
	}
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(&Config{PageSize: 50, MaxPageSize: 100}))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()

	var st store.Store
	if err := app.GetService(store.ServiceName, &st); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	var locker store.Locker
	if err := app.GetService(store.LockerServiceName, &locker); err != nil {
		m.logger.Warn("Task locker unavailable, using in-process locks", "error", err)
	}
	var dispatcher *notify.Dispatcher
	if err := app.GetService(notify.ServiceName, &dispatcher); err != nil {
		m.logger.Warn("Notification dispatcher unavailable", "error", err)
	}

	m.emitter.SetLogger(m.logger)
	opts := []Option{
		WithPublisher(m.emitter),
		WithPageSize(m.config.PageSize, m.config.MaxPageSize),
	}
	if dispatcher != nil {
		opts = append(opts, WithNotifier(dispatcher))
	}
	m.service = NewService(st, locker, m.logger, opts...)

	var mtr *metrics.Metrics
	if err := app.GetService(metrics.ServiceName, &mtr); err == nil && mtr != nil {
		collector := metrics.NewTaskCollector(mtr.Namespace(), func(ctx context.Context) (domain.TaskStats, error) {
			return m.service.Stats(ctx, "")
		})
		if err := mtr.Registry().Register(collector); err != nil {
			m.logger.Warn("Failed to register task collector", "error", err)
		}
	}

	m.logger.Info("Tasks module initialized")
	return nil
}

func (m *Module) Dependencies() []string {
	return []string{store.ModuleName, notify.ModuleName, metrics.ModuleName}
}

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Task, blocker and dependency service", Instance: m.service},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: store.ServiceName, Required: true},
	}
}

// RegisterObservers binds the service's event emitter.
func (m *Module) RegisterObservers(subject modular.Subject) error {
	m.emitter.Bind(subject)
	return nil
}

func (m *Module) EmitEvent(ctx context.Context, event cloudevents.Event) error {
	return m.emitter.EmitEvent(ctx, event)
}

// GetRegisteredEventTypes lists the events this module emits.
func (m *Module) GetRegisteredEventTypes() []string {
	return []string{
		events.TaskCreated,
		events.TaskUpdated,
		events.TaskStatusChanged,
		events.TaskDeleted,
		events.TaskAssigned,
		events.BlockerCreated,
		events.BlockerUpdated,
		events.BlockerDeleted,
		events.DependencyCreated,
		events.DependencyDeleted,
	}
}

// Service returns the service, nil before Init.
func (m *Module) Service() *Service {
	return m.service
}
