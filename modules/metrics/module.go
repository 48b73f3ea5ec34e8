package metrics

import (
	"fmt"

	"github.com/GoCodeAlone/modular"
)

// ModuleName is the unique identifier for the metrics module.
const ModuleName = "metrics"

// ServiceName is the name under which *Metrics is registered.
const ServiceName = "metrics.registry"

// Config controls the metrics namespace.
type Config struct {
	Namespace string `json:"namespace" yaml:"namespace" env:"METRICS_NAMESPACE" default:"taskflow" desc:"Prometheus metric prefix"`
}

// Module provides the shared *Metrics.
type Module struct {
	metrics *Metrics
}

func NewModule() *Module {
	return &Module{}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) RegisterConfig(app modular.Application) error {
	if existing, err := app.GetConfigSection(m.Name()); err == nil && existing != nil {
		return nil
	}
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(&Config{Namespace: "taskflow"}))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.metrics = New(cfg.GetConfig().(*Config).Namespace)
	return nil
}

func (m *Module) Dependencies() []string { return nil }

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Prometheus registry and taskflow counters", Instance: m.metrics},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency { return nil }

// Metrics returns the instruments, nil before Init.
func (m *Module) Metrics() *Metrics { return m.metrics }
