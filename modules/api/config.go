package api

import (
	"fmt"
	"time"
)

// Config defines the HTTP API surface.
type Config struct {
	// JWTSecret signs and verifies HS256 bearer tokens. Empty rejects
	// every authenticated request.
	JWTSecret string `yaml:"jwtSecret" json:"jwtSecret" env:"JWT_SECRET" desc:"HS256 secret for bearer tokens"`
	JWTIssuer string `yaml:"jwtIssuer" json:"jwtIssuer" env:"JWT_ISSUER" desc:"Required token issuer, empty accepts any"`

	AllowedOrigins   []string `yaml:"allowedOrigins" json:"allowedOrigins" default:"[\"*\"]" desc:"List of allowed origins for CORS requests."`
	AllowedMethods   []string `yaml:"allowedMethods" json:"allowedMethods" default:"[\"GET\",\"POST\",\"PUT\",\"DELETE\",\"OPTIONS\"]" desc:"List of allowed HTTP methods."`
	AllowedHeaders   []string `yaml:"allowedHeaders" json:"allowedHeaders" default:"[\"Origin\",\"Accept\",\"Content-Type\",\"Authorization\"]" desc:"List of allowed request headers."`
	AllowCredentials bool     `yaml:"allowCredentials" json:"allowCredentials" default:"false" desc:"Allow credentials in CORS requests."`
	MaxAge           int      `yaml:"maxAge" json:"maxAge" default:"300" desc:"Maximum age for CORS preflight cache in seconds."`

	RequestTimeout time.Duration `yaml:"requestTimeout" json:"requestTimeout" env:"API_REQUEST_TIMEOUT" default:"30s" desc:"Per-request deadline"`
	MaxBodyBytes   int64         `yaml:"maxBodyBytes" json:"maxBodyBytes" env:"API_MAX_BODY_BYTES" default:"1048576" desc:"Largest accepted request body"`

	// UpcomingDays is the default window for GET /api/tasks/upcoming.
	UpcomingDays int `yaml:"upcomingDays" json:"upcomingDays" env:"API_UPCOMING_DAYS" default:"7"`
}

// DefaultConfig returns the configuration registered when none is supplied.
func DefaultConfig() *Config {
	return &Config{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1 << 20,
		UpcomingDays:   7,
	}
}

// Validate fills defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = def.AllowedOrigins
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = def.AllowedMethods
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = def.AllowedHeaders
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.UpcomingDays <= 0 {
		c.UpcomingDays = 7
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("%w: maxAge %d", ErrInvalidConfig, c.MaxAge)
	}
	return nil
}
