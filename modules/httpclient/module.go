// Package httpclient provides the shared outbound *http.Client for taskflow.
//
// The AI completion client and the messaging transport both resolve the
// "httpclient" service, so connection pooling, timeouts and request logging
// are configured once. Credentials in headers are masked before logging.
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/GoCodeAlone/modular"
)

// ModuleName is the unique identifier for the httpclient module.
const ModuleName = "httpclient"

// ServiceName is the name of the *http.Client service.
const ServiceName = "httpclient"

// Module owns the transport and the client built on it.
type Module struct {
	config     *Config
	logger     modular.Logger
	transport  *http.Transport
	httpClient *http.Client
}

var _ modular.Module = (*Module)(nil)

// NewModule creates the httpclient module.
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
	cfg := &Config{}
	_ = cfg.Validate()
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(cfg))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	m.logger = app.Logger()

	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.config = cfg.GetConfig().(*Config)
	if err := m.config.Validate(); err != nil {
		return err
	}

	m.transport = newTransport(m.config)
	m.httpClient = newClient(m.config, m.transport, m.logger)
	m.logger.Info("HTTP client module initialized", "timeout", m.config.RequestTimeout)
	return nil
}

func (m *Module) Stop(context.Context) error {
	if m.transport != nil {
		m.transport.CloseIdleConnections()
	}
	return nil
}

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "Shared outbound HTTP client (*http.Client)",
			Instance:    m.httpClient,
		},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency {
	return nil
}

func (m *Module) Dependencies() []string {
	return nil
}

// Client returns the configured client, nil before Init.
func (m *Module) Client() *http.Client {
	return m.httpClient
}

// New builds a client from cfg outside of an application, for the CLI and
// tests. cfg must already be validated.
func New(cfg *Config, logger modular.Logger) *http.Client {
	return newClient(cfg, newTransport(cfg), logger)
}

func newTransport(cfg *Config) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSTimeout,
	}
}

func newClient(cfg *Config, transport http.RoundTripper, logger modular.Logger) *http.Client {
	return &http.Client{
		Transport: &loggingTransport{
			Transport:  transport,
			Logger:     logger,
			Verbose:    cfg.Verbose,
			LogHeaders: cfg.LogHeaders,
			Redact:     cfg.RedactHeaders,
		},
		Timeout: cfg.RequestTimeout,
	}
}
