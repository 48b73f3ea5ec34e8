package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/intent"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

// ModuleName is the unique identifier for the reminders module.
const ModuleName = "reminders"

// ServiceName is the name under which *Handle is registered.
const ServiceName = "reminders.scheduler"

// JobsServiceName is the name under which *Reminders is registered.
const JobsServiceName = "reminders.jobs"

// Config defines the reminder schedule.
type Config struct {
	// Enabled starts the cron loop. Jobs stay registered and runnable by
	// hand when disabled.
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"REMINDERS_ENABLED"`
	Timezone string `json:"timezone" yaml:"timezone" env:"TIMEZONE" default:"UTC"`

	UpcomingDays    int           `json:"upcomingDays" yaml:"upcomingDays" env:"REMINDERS_UPCOMING_DAYS" default:"3"`
	EscalationDays  int           `json:"escalationDays" yaml:"escalationDays" env:"REMINDERS_ESCALATION_DAYS" default:"3"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout" env:"REMINDERS_SHUTDOWN_TIMEOUT" default:"30s"`

	Specs Specs `json:"specs" yaml:"specs"`
}

// Validate fills defaults and checks the timezone.
func (c *Config) Validate() error {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("reminders: invalid timezone %q: %w", c.Timezone, err)
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	c.Specs = c.Specs.withDefaults()
	return nil
}

// Module runs the reminder jobs.
type Module struct {
	config    *Config
	logger    modular.Logger
	emitter   *events.Emitter
	handle    *Handle
	reminders *Reminders
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
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(&Config{
		Enabled:         true,
		Timezone:        "UTC",
		UpcomingDays:    3,
		EscalationDays:  3,
		ShutdownTimeout: 30 * time.Second,
		Specs:           DefaultSpecs(),
	}))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.config = cfg.GetConfig().(*Config)
	if err := m.config.Validate(); err != nil {
		return err
	}
	m.logger = app.Logger()
	loc, _ := time.LoadLocation(m.config.Timezone)

	var svc *tasks.Service
	if err := app.GetService(tasks.ServiceName, &svc); err != nil {
		return fmt.Errorf("reminders: %w", err)
	}
	var dispatcher *notify.Dispatcher
	if err := app.GetService(notify.ServiceName, &dispatcher); err != nil {
		return fmt.Errorf("reminders: %w", err)
	}
	var summarizer Summarizer
	var parser *intent.Parser
	if err := app.GetService(intent.ServiceName, &parser); err == nil && parser != nil && parser.HasCompleter() {
		summarizer = parser
	}
	var mtr *metrics.Metrics
	_ = app.GetService(metrics.ServiceName, &mtr)

	m.emitter.SetLogger(m.logger)
	m.handle = NewHandle(m.logger,
		WithLocation(loc),
		WithMetrics(mtr),
		WithPublisher(m.emitter),
		WithHandleClock(svc.Now),
	)
	m.reminders = New(svc, dispatcher, summarizer, m.logger, Settings{
		Location:       loc,
		UpcomingDays:   m.config.UpcomingDays,
		EscalationDays: m.config.EscalationDays,
	})
	return m.reminders.Register(m.handle, m.config.Specs)
}

func (m *Module) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("Reminder scheduler disabled, jobs run only on demand")
		return nil
	}
	m.handle.Start()
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()
	return m.handle.Shutdown(shutdownCtx)
}

func (m *Module) Dependencies() []string {
	return []string{tasks.ModuleName, notify.ModuleName, intent.ModuleName, metrics.ModuleName}
}

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Named cron jobs for reminders and summaries", Instance: m.handle},
		{Name: JobsServiceName, Description: "Reminder job bodies and manual triggers", Instance: m.reminders},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: tasks.ServiceName, Required: true},
		{Name: notify.ServiceName, Required: true},
	}
}

func (m *Module) RegisterObservers(subject modular.Subject) error {
	m.emitter.Bind(subject)
	return nil
}

func (m *Module) EmitEvent(ctx context.Context, event cloudevents.Event) error {
	return m.emitter.EmitEvent(ctx, event)
}

// GetRegisteredEventTypes lists the events this module emits.
func (m *Module) GetRegisteredEventTypes() []string {
	return []string{events.JobCompleted, events.JobFailed}
}

// Handle returns the job handle, nil before Init.
func (m *Module) Handle() *Handle {
	return m.handle
}

// Reminders returns the job bodies, nil before Init.
func (m *Module) Reminders() *Reminders {
	return m.reminders
}
