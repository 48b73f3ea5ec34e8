package events

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ModuleName is the unique identifier for the events module.
const ModuleName = "events"

// Config controls which events are logged and where they are forwarded.
type Config struct {
	// Enabled turns the observer on.
	Enabled bool `json:"enabled" yaml:"enabled" env:"EVENTS_ENABLED"`

	// LogLevel is the level events are logged at (DEBUG, INFO).
	LogLevel string `json:"logLevel" yaml:"logLevel" env:"EVENTS_LOG_LEVEL" default:"INFO"`

	// EventTypeFilters limits logging to these types. Empty means all
	// taskflow events.
	EventTypeFilters []string `json:"eventTypeFilters" yaml:"eventTypeFilters"`

	// RedisURL enables forwarding to Redis pub/sub when set.
	RedisURL string `json:"redisURL" yaml:"redisURL" env:"EVENTS_REDIS_URL"`

	// ChannelPrefix is prepended to the event type to form the channel.
	ChannelPrefix string `json:"channelPrefix" yaml:"channelPrefix" env:"EVENTS_CHANNEL_PREFIX" default:"taskflow."`

	// ForwardTimeout bounds one Redis publish.
	ForwardTimeout time.Duration `json:"forwardTimeout" yaml:"forwardTimeout" env:"EVENTS_FORWARD_TIMEOUT" default:"2s"`
}

// Validate normalises the log level.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.LogLevel) {
	case "", "INFO":
		c.LogLevel = "INFO"
	case "DEBUG":
		c.LogLevel = "DEBUG"
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, c.LogLevel)
	}
	if c.ForwardTimeout <= 0 {
		c.ForwardTimeout = 2 * time.Second
	}
	return nil
}

// Module observes taskflow events, writes each one to the application log
// and forwards it to Redis when configured.
type Module struct {
	config     *Config
	logger     modular.Logger
	forwarder  *RedisForwarder
	mu         sync.Mutex
	registered bool
}

var (
	_ modular.ObservableModule = (*Module)(nil)
	_ modular.Observer         = (*Module)(nil)
)

// NewModule creates the events module.
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
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(&Config{
		Enabled:        true,
		LogLevel:       "INFO",
		ChannelPrefix:  "taskflow.",
		ForwardTimeout: 2 * time.Second,
	}))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	config := cfg.GetConfig().(*Config)
	if err := config.Validate(); err != nil {
		return err
	}
	var forwarder *RedisForwarder
	if config.Enabled && config.RedisURL != "" {
		forwarder, err = NewRedisForwarder(config.RedisURL, config.ChannelPrefix)
		if err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.config = config
	m.logger = app.Logger()
	m.forwarder = forwarder
	m.mu.Unlock()
	m.logger.Info("Events module initialized", "enabled", m.config.Enabled, "forwarding", m.forwarder != nil)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	if m.forwarder == nil {
		return nil
	}
	return m.forwarder.Start(ctx)
}

func (m *Module) Stop(ctx context.Context) error {
	if m.forwarder == nil {
		return nil
	}
	return m.forwarder.Stop(ctx)
}

func (m *Module) Dependencies() []string { return nil }

func (m *Module) ProvidesServices() []modular.ServiceProvider { return nil }

func (m *Module) RequiresServices() []modular.ServiceDependency { return nil }

// RegisterObservers subscribes the module to taskflow events. The
// application calls it before Init, so with no config yet the module
// registers for every type and OnEvent applies the configured filters.
func (m *Module) RegisterObservers(subject modular.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}
	if m.config != nil && !m.config.Enabled {
		m.registered = true
		return nil
	}
	types := AllTypes()
	if m.config != nil && len(m.config.EventTypeFilters) > 0 {
		types = m.config.EventTypeFilters
	}
	if err := subject.RegisterObserver(m, types...); err != nil {
		return fmt.Errorf("failed to register events observer: %w", err)
	}
	m.registered = true
	if m.logger != nil {
		m.logger.Info("Events observer registered", "types", len(types))
	}
	return nil
}

// EmitEvent is unused; the module only observes.
func (m *Module) EmitEvent(context.Context, cloudevents.Event) error {
	return nil
}

// GetRegisteredEventTypes is empty; the module emits nothing of its own.
func (m *Module) GetRegisteredEventTypes() []string {
	return nil
}

// accepts reports whether the configured module wants eventType.
func (m *Module) accepts(eventType string) bool {
	if m.config == nil || !m.config.Enabled {
		return false
	}
	return len(m.config.EventTypeFilters) == 0 || slices.Contains(m.config.EventTypeFilters, eventType)
}

// OnEvent logs the event and forwards it.
func (m *Module) OnEvent(ctx context.Context, event cloudevents.Event) error {
	m.mu.Lock()
	ok := m.accepts(event.Type())
	m.mu.Unlock()
	if !ok {
		return nil
	}

	var data map[string]any
	_ = event.DataAs(&data)
	args := []any{"type", event.Type(), "source", event.Source(), "id", event.ID()}
	for _, k := range []string{"taskId", "status", "kind", "job", "userId"} {
		if v, ok := data[k]; ok {
			args = append(args, k, v)
		}
	}
	if m.config.LogLevel == "DEBUG" {
		m.logger.Debug("Event", args...)
	} else {
		m.logger.Info("Event", args...)
	}

	if m.forwarder == nil {
		return nil
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.ForwardTimeout)
	defer cancel()
	if err := m.forwarder.Forward(fctx, event); err != nil {
		m.logger.Warn("Failed to forward event", "type", event.Type(), "error", err)
		return err
	}
	return nil
}

// ObserverID identifies the module in the subject's registry.
func (m *Module) ObserverID() string {
	return ModuleName
}
