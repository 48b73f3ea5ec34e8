package intake

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/intent"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

// ModuleName is the unique identifier for the intake module.
const ModuleName = "intake"

// ServiceName is the name under which *Pipeline is registered.
const ServiceName = "intake.pipeline"

// Config bounds inbound text.
type Config struct {
	MaxTextLength int `json:"maxTextLength" yaml:"maxTextLength" env:"INTAKE_MAX_TEXT_LENGTH" default:"20000" desc:"Longest accepted message or upload, in characters"`
}

type Module struct {
	config   *Config
	logger   modular.Logger
	emitter  *events.Emitter
	pipeline *Pipeline
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
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(&Config{MaxTextLength: 20000}))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()

	var svc *tasks.Service
	if err := app.GetService(tasks.ServiceName, &svc); err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	var parser *intent.Parser
	if err := app.GetService(intent.ServiceName, &parser); err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	var mtr *metrics.Metrics
	_ = app.GetService(metrics.ServiceName, &mtr)

	m.emitter.SetLogger(m.logger)
	m.pipeline = NewPipeline(parser, svc, m.logger,
		WithMetrics(mtr),
		WithPublisher(m.emitter),
		WithMaxTextLength(m.config.MaxTextLength),
	)
	return nil
}

func (m *Module) Dependencies() []string {
	return []string{tasks.ModuleName, intent.ModuleName, metrics.ModuleName}
}

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Natural-language task intake", Instance: m.pipeline},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: tasks.ServiceName, Required: true},
		{Name: intent.ServiceName, Required: true},
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
	return []string{events.IntakeProcessed}
}

// Pipeline returns the pipeline, nil before Init.
func (m *Module) Pipeline() *Pipeline {
	return m.pipeline
}
