// Package notify formats task notifications and delivers them through the
// configured messaging transport. Failures are recorded per recipient and
// never interrupt the caller.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/httpclient"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
)

// ModuleName is the unique identifier for the notify module.
const ModuleName = "notify"

// ServiceName is the name under which *Dispatcher is registered.
const ServiceName = "notify.dispatcher"

// WebhookServiceName is the name under which *Webhook is registered.
const WebhookServiceName = "notify.webhook"

// Providers.
const (
	ProviderLog    = "log"
	ProviderTelnyx = "telnyx"
)

// Config selects and configures the messaging transport.
type Config struct {
	// Provider is "telnyx" or "log". Empty picks telnyx when credentials
	// are present.
	Provider string `json:"provider" yaml:"provider" env:"NOTIFY_PROVIDER"`

	APIKey    string `json:"apiKey" yaml:"apiKey" env:"TELNYX_API_KEY"`
	ProfileID string `json:"profileID" yaml:"profileID" env:"TELNYX_WHATSAPP_PROFILE_ID"`
	BaseURL   string `json:"baseURL" yaml:"baseURL" env:"TELNYX_BASE_URL" default:"https://api.telnyx.com"`

	// SendTimeout bounds one send including retries.
	SendTimeout time.Duration `json:"sendTimeout" yaml:"sendTimeout" env:"NOTIFY_SEND_TIMEOUT" default:"10s"`

	// WebhookSecret verifies inbound webhook signatures. Empty disables
	// verification.
	WebhookSecret string `json:"webhookSecret" yaml:"webhookSecret" env:"TELNYX_WEBHOOK_SECRET"`
}

// Validate resolves the provider and checks its credentials.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderLog
		if c.APIKey != "" && c.ProfileID != "" {
			c.Provider = ProviderTelnyx
		}
	}
	switch c.Provider {
	case ProviderLog:
	case ProviderTelnyx:
		if c.APIKey == "" || c.ProfileID == "" {
			return ErrNotConfigured
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProvider, c.Provider)
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return nil
}

// Module builds the dispatcher from config and the shared HTTP client.
type Module struct {
	config     *Config
	logger     modular.Logger
	emitter    *events.Emitter
	transport  Transport
	dispatcher *Dispatcher
	webhook    *Webhook
}

var _ modular.ObservableModule = (*Module)(nil)

// NewModule creates the notify module. A non-nil transport overrides the
// configured provider.
func NewModule(transport Transport) *Module {
	return &Module{transport: transport, emitter: events.NewEmitter(ModuleName, nil)}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RegisterConfig(app modular.Application) error {
	if existing, err := app.GetConfigSection(m.Name()); err == nil && existing != nil {
		return nil
	}
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(&Config{
		BaseURL:     telnyxBaseURL,
		SendTimeout: 10 * time.Second,
	}))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()
	if err := m.config.Validate(); err != nil {
		return err
	}

	var client *http.Client
	if err := app.GetService(httpclient.ServiceName, &client); err != nil {
		m.logger.Warn("Shared HTTP client unavailable, using default", "error", err)
	}
	var mtr *metrics.Metrics
	_ = app.GetService(metrics.ServiceName, &mtr)

	if m.transport == nil {
		switch m.config.Provider {
		case ProviderTelnyx:
			t, err := NewTelnyxTransport(m.config.APIKey, m.config.ProfileID, m.config.BaseURL, client)
			if err != nil {
				return err
			}
			m.transport = t
		default:
			m.logger.Warn("Telnyx not configured, messages will only be logged")
			m.transport = NewLogTransport(m.logger)
		}
	}

	m.emitter.SetLogger(m.logger)
	m.dispatcher = NewDispatcher(m.transport, m.logger,
		WithTimeout(m.config.SendTimeout),
		WithMetrics(mtr),
		WithPublisher(m.emitter),
	)
	m.webhook = NewWebhook(m.config.WebhookSecret)
	m.logger.Info("Notify module initialized", "provider", m.config.Provider, "webhookVerification", m.webhook.Enabled())
	return nil
}

func (m *Module) Dependencies() []string {
	return []string{httpclient.ModuleName, metrics.ModuleName}
}

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Task notification dispatcher", Instance: m.dispatcher},
		{Name: WebhookServiceName, Description: "Inbound webhook signature verifier", Instance: m.webhook},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency {
	return nil
}

// RegisterObservers binds the delivery event emitter to the application.
func (m *Module) RegisterObservers(subject modular.Subject) error {
	m.emitter.Bind(subject)
	return nil
}

func (m *Module) EmitEvent(ctx context.Context, event cloudevents.Event) error {
	return m.emitter.EmitEvent(ctx, event)
}

// GetRegisteredEventTypes lists the events this module emits.
func (m *Module) GetRegisteredEventTypes() []string {
	return []string{events.NotificationSent, events.NotificationFailed}
}

// Dispatcher returns the dispatcher, nil before Init.
func (m *Module) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// Webhook returns the inbound signature verifier, nil before Init.
func (m *Module) Webhook() *Webhook {
	return m.webhook
}
