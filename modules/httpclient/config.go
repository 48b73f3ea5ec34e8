package httpclient

import (
	"fmt"
	"net/http"
	"time"
)

// Config defines the shared outbound HTTP client used for the AI completion
// API and the messaging transport.
//
// Example YAML configuration:
//
//	httpclient:
//	  max_idle_conns: 50
//	  request_timeout: 20s
//	  verbose: true
type Config struct {
	// MaxIdleConns controls the maximum number of idle connections across all hosts.
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns" env:"HTTPCLIENT_MAX_IDLE_CONNS" default:"50"`

	// MaxIdleConnsPerHost controls the idle connections kept per host.
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host" env:"HTTPCLIENT_MAX_IDLE_CONNS_PER_HOST" default:"10"`

	// IdleConnTimeout is how long an idle connection stays open.
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout" env:"HTTPCLIENT_IDLE_CONN_TIMEOUT" default:"90s"`

	// RequestTimeout bounds a whole request including reading the body.
	// Callers usually set a tighter deadline on the request context.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" env:"HTTPCLIENT_REQUEST_TIMEOUT" default:"30s"`

	// TLSTimeout is the maximum time waiting for a TLS handshake.
	TLSTimeout time.Duration `yaml:"tls_timeout" json:"tls_timeout" env:"HTTPCLIENT_TLS_TIMEOUT" default:"10s"`

	// Verbose logs every request and response at info level instead of debug.
	Verbose bool `yaml:"verbose" json:"verbose" env:"HTTPCLIENT_VERBOSE"`

	// LogHeaders includes request headers in the log. Headers listed in
	// RedactHeaders are always masked.
	LogHeaders bool `yaml:"log_headers" json:"log_headers" env:"HTTPCLIENT_LOG_HEADERS"`

	// RedactHeaders names headers whose values are never logged.
	RedactHeaders []string `yaml:"redact_headers" json:"redact_headers"`
}

// Validate fills defaults for zero values.
func (c *Config) Validate() error {
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 50
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 10
	}
	if c.MaxIdleConnsPerHost > c.MaxIdleConns {
		return fmt.Errorf("%w: max_idle_conns_per_host %d exceeds max_idle_conns %d",
			ErrInvalidConfig, c.MaxIdleConnsPerHost, c.MaxIdleConns)
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.TLSTimeout <= 0 {
		c.TLSTimeout = 10 * time.Second
	}
	if len(c.RedactHeaders) == 0 {
		c.RedactHeaders = []string{"Authorization", "X-Api-Key"}
	}
	for i, h := range c.RedactHeaders {
		c.RedactHeaders[i] = http.CanonicalHeaderKey(h)
	}
	return nil
}
