package api

import (
	"fmt"

	"github.com/GoCodeAlone/modular"
	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/taskflow/modules/intake"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/reminders"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

// ModuleName is the unique identifier for the api module.
const ModuleName = "api"

// ServiceName is the name under which the chi.Router is registered. The
// httpserver module serves whatever is registered here.
const ServiceName = "router"

// Module builds the HTTP API router.
type Module struct {
	config *Config
	logger modular.Logger
	router chi.Router
}

func NewModule() *Module {
	return &Module{}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RegisterConfig(app modular.Application) error {
	if existing, err := app.GetConfigSection(m.Name()); err == nil && existing != nil {
		return nil
	}
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(DefaultConfig()))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()

	var deps Deps
	if err := app.GetService(tasks.ServiceName, &deps.Tasks); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := app.GetService(intake.ServiceName, &deps.Intake); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := app.GetService(notify.ServiceName, &deps.Notifier); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	_ = app.GetService(notify.WebhookServiceName, &deps.Webhook)
	_ = app.GetService(metrics.ServiceName, &deps.Metrics)
	if err := app.GetService(reminders.ServiceName, &deps.Scheduler); err != nil {
		m.logger.Warn("Scheduler unavailable, /api/scheduler routes disabled", "error", err)
	}
	_ = app.GetService(reminders.JobsServiceName, &deps.Jobs)

	router, err := NewRouter(m.config, deps, m.logger)
	if err != nil {
		return err
	}
	m.router = router
	m.logger.Info("API router initialized")
	return nil
}

func (m *Module) Dependencies() []string {
	return []string{tasks.ModuleName, intake.ModuleName, notify.ModuleName, reminders.ModuleName, metrics.ModuleName}
}

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Chi router serving the taskflow HTTP API", Instance: m.router},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: tasks.ServiceName, Required: true},
		{Name: intake.ServiceName, Required: true},
		{Name: notify.ServiceName, Required: true},
	}
}

// Router returns the router, nil before Init.
func (m *Module) Router() chi.Router {
	return m.router
}
