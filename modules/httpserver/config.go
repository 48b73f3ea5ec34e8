// Package httpserver serves the registered "router" handler over HTTP or
// HTTPS with graceful shutdown.
package httpserver

import (
	"fmt"
	"time"
)

// Config defines the configuration for the HTTP server module.
type Config struct {
	// Host is the hostname or IP address to bind to.
	Host string `yaml:"host" json:"host" env:"HTTP_HOST" default:"0.0.0.0" desc:"Bind address"`

	// Port is the port number to listen on.
	Port int `yaml:"port" json:"port" env:"PORT" default:"3000" desc:"Listen port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	ReadTimeout time.Duration `yaml:"readTimeout" json:"readTimeout" env:"HTTP_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	WriteTimeout time.Duration `yaml:"writeTimeout" json:"writeTimeout" env:"HTTP_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `yaml:"idleTimeout" json:"idleTimeout" env:"HTTP_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout" env:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`

	// StartTimeout bounds the wait for the listener to accept connections.
	StartTimeout time.Duration `yaml:"startTimeout" json:"startTimeout" default:"5s"`

	TLS TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig holds certificate files for HTTPS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled" env:"HTTP_TLS_ENABLED"`
	CertFile string `yaml:"certFile" json:"certFile" env:"HTTP_TLS_CERT_FILE"`
	KeyFile  string `yaml:"keyFile" json:"keyFile" env:"HTTP_TLS_KEY_FILE"`
}

// DefaultConfig returns the configuration registered when none is supplied.
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            3000,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		StartTimeout:    5 * time.Second,
	}
}

// Validate checks if the configuration is valid and sets default values
// where appropriate. Port 0 binds an ephemeral port.
func (c *Config) Validate() error {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port number %d", ErrInvalidConfig, c.Port)
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 5 * time.Second
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("%w: TLS is enabled but no certificate file specified", ErrInvalidConfig)
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("%w: TLS is enabled but no key file specified", ErrInvalidConfig)
		}
	}
	return nil
}
