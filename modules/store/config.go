package store

import (
	"fmt"
	"time"
)

// Config defines the configuration for the store module.
//
// Example YAML configuration:
//
//	store:
//	  driver: sqlite
//	  dsn: "file:taskflow.db?_pragma=busy_timeout(5000)"
//	  lock:
//	    backend: redis
//	    redisURL: redis://localhost:6379/0
type Config struct {
	// Driver is the database/sql driver name. Only "sqlite" is compiled in.
	Driver string `json:"driver" yaml:"driver" env:"STORE_DRIVER" default:"sqlite" desc:"database/sql driver name"`

	// DSN is the data source name passed to sql.Open.
	DSN string `json:"dsn" yaml:"dsn" env:"STORE_DSN" default:"file:taskflow.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)" desc:"Database connection string"`

	// ConnectionMaxLifetime bounds how long a pooled connection is reused.
	ConnectionMaxLifetime time.Duration `json:"connectionMaxLifetime" yaml:"connectionMaxLifetime" env:"STORE_CONN_MAX_LIFETIME" default:"30m"`

	// Lock selects how per-task serialization is done.
	Lock LockConfig `json:"lock" yaml:"lock"`
}

// LockConfig configures the per-task Locker.
type LockConfig struct {
	// Backend is "memory" for a single process or "redis" for several.
	Backend string `json:"backend" yaml:"backend" env:"LOCK_BACKEND" default:"memory" desc:"Lock backend (memory, redis)"`

	// RedisURL is used when Backend is redis.
	// Format: redis://[username:password@]host:port[/database]
	RedisURL string `json:"redisURL" yaml:"redisURL" env:"LOCK_REDIS_URL"`

	// KeyPrefix namespaces lock keys in redis.
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix" env:"LOCK_KEY_PREFIX" default:"taskflow:lock:"`

	// TTL caps how long a crashed holder can keep a key.
	TTL time.Duration `json:"ttl" yaml:"ttl" env:"LOCK_TTL" default:"30s"`

	// RetryInterval is the poll interval while waiting for a held key.
	RetryInterval time.Duration `json:"retryInterval" yaml:"retryInterval" env:"LOCK_RETRY_INTERVAL" default:"25ms"`
}

// Validate fills blanks and rejects unknown values.
func (c *Config) Validate() error {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.Driver != "sqlite" {
		return fmt.Errorf("%w: %s", ErrUnsupportedDriver, c.Driver)
	}
	if c.DSN == "" {
		return ErrEmptyDSN
	}
	switch c.Lock.Backend {
	case "", "memory":
		c.Lock.Backend = "memory"
	case "redis":
		if c.Lock.RedisURL == "" {
			return fmt.Errorf("%w: redis backend needs redisURL", ErrUnknownLockBackend)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownLockBackend, c.Lock.Backend)
	}
	return nil
}
