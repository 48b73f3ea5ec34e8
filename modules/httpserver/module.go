package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/taskflow/modules/events"
)

// ModuleName is the name of this module for registration and dependency resolution.
const ModuleName = "httpserver"

// RouterServiceName is the service the server hands requests to.
const RouterServiceName = "router"

// Module serves the application's router. The handler arrives through
// Constructor, before Init.
type Module struct {
	config  *Config
	logger  modular.Logger
	handler http.Handler
	emitter *events.Emitter

	mu      sync.RWMutex
	server  *http.Server
	addr    string
	started bool
}

var (
	_ modular.Module           = (*Module)(nil)
	_ modular.Constructable    = (*Module)(nil)
	_ modular.ObservableModule = (*Module)(nil)
)

func NewModule() *Module {
	return &Module{emitter: events.NewEmitter(ModuleName, nil)}
}

func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the default configuration unless a section was
// already supplied.
func (m *Module) RegisterConfig(app modular.Application) error {
	if existing, err := app.GetConfigSection(m.Name()); err == nil && existing != nil {
		return nil
	}
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(DefaultConfig()))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	m.logger = app.Logger()
	m.emitter.SetLogger(m.logger)

	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.config = cfg.GetConfig().(*Config)
	if err := m.config.Validate(); err != nil {
		return err
	}
	m.logger.Info("HTTP server module initialized", "host", m.config.Host, "port", m.config.Port, "tls", m.config.TLS.Enabled)
	return nil
}

// Constructor returns a dependency injection function that initializes the module with
// required services
func (m *Module) Constructor() modular.ModuleConstructor {
	return func(_ modular.Application, services map[string]any) (modular.Module, error) {
		handler, ok := services[RouterServiceName].(http.Handler)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRouterServiceNotHandler, RouterServiceName)
		}
		m.handler = handler
		return m, nil
	}
}

// Start binds the listener, serves in the background and waits until the
// address accepts connections or StartTimeout passes.
func (m *Module) Start(ctx context.Context) error {
	if m.handler == nil {
		return ErrNoHandler
	}

	addr := net.JoinHostPort(m.config.Host, fmt.Sprint(m.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:      m.handler,
		ReadTimeout:  m.config.ReadTimeout,
		WriteTimeout: m.config.WriteTimeout,
		IdleTimeout:  m.config.IdleTimeout,
	}
	if m.config.TLS.Enabled {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	m.mu.Lock()
	m.server = server
	m.addr = ln.Addr().String()
	m.mu.Unlock()

	go func() {
		m.logger.Info("Starting HTTP server", "address", ln.Addr().String(), "tls", m.config.TLS.Enabled)
		var err error
		if m.config.TLS.Enabled {
			err = server.ServeTLS(ln, m.config.TLS.CertFile, m.config.TLS.KeyFile)
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	if err := m.waitReady(ctx, ln.Addr().String()); err != nil {
		_ = server.Close()
		return err
	}

	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	m.logger.Info("HTTP server started successfully", "address", ln.Addr().String())
	m.emitter.Publish(ctx, events.ServerStarted, map[string]any{
		"address": ln.Addr().String(),
		"tls":     m.config.TLS.Enabled,
	})
	return nil
}

func (m *Module) waitReady(ctx context.Context, addr string) error {
	timeout := m.config.StartTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	check := func() error {
		var dialer net.Dialer
		conn, err := dialer.DialContext(checkCtx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dialing server: %w", err)
		}
		if closeErr := conn.Close(); closeErr != nil {
			m.logger.Warn("Failed to close connection", "error", closeErr)
		}
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	startTime := time.Now()
	for {
		err := check()
		if err == nil {
			return nil
		}
		if time.Since(startTime) > timeout {
			return fmt.Errorf("failed to start HTTP server within timeout: %w", err)
		}
		select {
		case <-checkCtx.Done():
			return ErrServerStartTimeout
		case <-ticker.C:
		}
	}
}

// Stop shuts the server down, letting in-flight requests finish within
// ShutdownTimeout.
func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	server, started := m.server, m.started
	m.mu.Unlock()
	if server == nil || !started {
		return ErrServerNotStarted
	}

	m.logger.Info("Stopping HTTP server", "timeout", m.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down HTTP server: %w", err)
	}

	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
	m.logger.Info("HTTP server stopped successfully")
	m.emitter.Publish(ctx, events.ServerStopped, map[string]any{"address": m.Address()})
	return nil
}

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ModuleName, Description: "HTTP server serving the taskflow API", Instance: m},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{
			Name:               RouterServiceName,
			Required:           true,
			MatchByInterface:   true,
			SatisfiesInterface: reflect.TypeOf((*http.Handler)(nil)).Elem(),
		},
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
	return []string{events.ServerStarted, events.ServerStopped}
}

// Address returns the bound listener address, empty before Start.
func (m *Module) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.addr
}
