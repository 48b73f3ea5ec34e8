package intent

import (
	"fmt"
	"net/http"
	"time"

	"github.com/GoCodeAlone/modular"

	"github.com/GoCodeAlone/taskflow/modules/httpclient"
)

// ModuleName is the unique identifier for the intent module.
const ModuleName = "intent"

// ServiceName is the name under which *Parser is registered.
const ServiceName = "intent.parser"

// Config configures the completion model.
type Config struct {
	// APIKey enables the OpenAI completer. Without it every message parses
	// to Help.
	APIKey  string `json:"apiKey" yaml:"apiKey" env:"OPENAI_API_KEY"`
	BaseURL string `json:"baseURL" yaml:"baseURL" env:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model   string `json:"model" yaml:"model" env:"OPENAI_MODEL" default:"gpt-4"`

	// Timeout bounds one parse, including retries.
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"INTENT_TIMEOUT" default:"15s"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = openaiBaseURL
	}
	if c.Model == "" {
		c.Model = openaiModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return nil
}

// Module provides the intent parser.
type Module struct {
	config    *Config
	completer Completer
	parser    *Parser
}

// NewModule creates the intent module. A non-nil completer replaces the
// OpenAI client.
func NewModule(completer Completer) *Module {
	return &Module{completer: completer}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RegisterConfig(app modular.Application) error {
	if existing, err := app.GetConfigSection(m.Name()); err == nil && existing != nil {
		return nil
	}
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(&Config{
		BaseURL: openaiBaseURL,
		Model:   openaiModel,
		Timeout: 15 * time.Second,
	}))
	return nil
}

func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	m.config = cfg.GetConfig().(*Config)
	if err := m.config.Validate(); err != nil {
		return err
	}
	logger := app.Logger()

	if m.completer == nil && m.config.APIKey != "" {
		var client *http.Client
		if err := app.GetService(httpclient.ServiceName, &client); err != nil {
			logger.Warn("Shared HTTP client unavailable, using default", "error", err)
		}
		oc, err := NewOpenAIClient(m.config.APIKey, m.config.BaseURL, m.config.Model, client)
		if err != nil {
			return err
		}
		m.completer = oc
	}
	if m.completer == nil {
		logger.Warn("OpenAI API key not configured, messages will be answered with help")
	}

	m.parser, err = NewParser(m.completer, logger, WithTimeout(m.config.Timeout))
	if err != nil {
		return err
	}
	logger.Info("Intent module initialized", "model", m.config.Model, "enabled", m.completer != nil)
	return nil
}

func (m *Module) Dependencies() []string {
	return []string{httpclient.ModuleName}
}

func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Natural-language intent parser", Instance: m.parser},
	}
}

func (m *Module) RequiresServices() []modular.ServiceDependency {
	return nil
}

// Parser returns the parser, nil before Init.
func (m *Module) Parser() *Parser {
	return m.parser
}
