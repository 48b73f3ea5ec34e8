package store

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/redis/go-redis/v9"
)

// ModuleName is the unique identifier for the store module.
const ModuleName = "store"

// ServiceName is the name under which the Store is registered.
const ServiceName = "store.provider"

// LockerServiceName is the name under which the Locker is registered.
const LockerServiceName = "store.locker"

// Module owns the database handle and the task locker.
type Module struct {
	config *Config
	logger modular.Logger
	store  *SQLStore
	locker Locker
	redis  *redis.Client
	opts   []Option
}

// NewModule creates the store module. Options are passed to the SQLStore.
func NewModule(opts ...Option) *Module {
	return &Module{opts: opts}
}

func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the store section unless one is already present.
func (m *Module) RegisterConfig(app modular.Application) error {
	if existing, err := app.GetConfigSection(m.Name()); err == nil && existing != nil {
		return nil
	}
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(&Config{
		Driver:                "sqlite",
		DSN:                   "file:taskflow.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		ConnectionMaxLifetime: 30 * time.Minute,
		Lock: LockConfig{
			Backend:       "memory",
			KeyPrefix:     "taskflow:lock:",
			TTL:           30 * time.Second,
			RetryInterval: 25 * time.Millisecond,
		},
	}))
	return nil
}

// Init opens the database, applies migrations and builds the locker.
func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.config = cfg.GetConfig().(*Config)
	m.logger = app.Logger()

	if err := m.config.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Open(ctx, m.config.Driver, m.config.DSN, m.opts...)
	if err != nil {
		return err
	}
	if m.config.ConnectionMaxLifetime > 0 {
		s.DB().SetConnMaxLifetime(m.config.ConnectionMaxLifetime)
	}
	m.store = s

	switch m.config.Lock.Backend {
	case "redis":
		opts, err := redis.ParseURL(m.config.Lock.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse lock redis URL: %w", err)
		}
		m.redis = redis.NewClient(opts)
		if err := m.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to lock redis: %w", err)
		}
		m.locker = NewRedisLocker(m.redis, m.config.Lock.KeyPrefix, m.config.Lock.TTL, m.config.Lock.RetryInterval, m.logger)
	default:
		m.locker = NewMemoryLocker()
	}

	m.logger.Info("Store module initialized", "driver", m.config.Driver, "lockBackend", m.config.Lock.Backend)
	return nil
}

// Stop closes the database and any redis client.
func (m *Module) Stop(ctx context.Context) error {
	var firstErr error
	if m.redis != nil {
		if err := m.redis.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close lock redis: %w", err)
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database: %w", err)
		}
	}
	if m.logger != nil {
		m.logger.Info("Store module stopped")
	}
	return firstErr
}

func (m *Module) Dependencies() []string {
	return nil
}

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Task, blocker, dependency and user persistence", Instance: Store(m.store)},
		{Name: LockerServiceName, Description: "Per-task serialization", Instance: m.locker},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency {
	return nil
}

// Store returns the opened store, nil before Init.
func (m *Module) Store() Store {
	if m.store == nil {
		return nil
	}
	return m.store
}

// Locker returns the configured locker, nil before Init.
func (m *Module) Locker() Locker {
	return m.locker
}
