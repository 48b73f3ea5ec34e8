// Package taskflow assembles the task tracking application: a conversational
// intake pipeline over a rule-enforcing task store, a notification
// dispatcher, scheduled reminder jobs and the HTTP API.
//
// Usage:
//
//	modular.ConfigFeeders = taskflow.Feeders("config.yaml")
//	app, err := taskflow.NewApplication(taskflow.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	return app.Run()
package taskflow

import (
	"errors"
	"fmt"
	"os"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular/feeders"

	"github.com/GoCodeAlone/taskflow/modules/api"
	"github.com/GoCodeAlone/taskflow/modules/events"
	"github.com/GoCodeAlone/taskflow/modules/httpclient"
	"github.com/GoCodeAlone/taskflow/modules/httpserver"
	"github.com/GoCodeAlone/taskflow/modules/intake"
	"github.com/GoCodeAlone/taskflow/modules/intent"
	"github.com/GoCodeAlone/taskflow/modules/logmasker"
	"github.com/GoCodeAlone/taskflow/modules/metrics"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/reminders"
	"github.com/GoCodeAlone/taskflow/modules/store"
	"github.com/GoCodeAlone/taskflow/modules/tasks"
)

// ErrLoggerNotSet is returned by NewApplication without WithLogger.
var ErrLoggerNotSet = errors.New("taskflow: logger not set")

type options struct {
	logger    modular.Logger
	masking   *logmasker.Config
	transport notify.Transport
	completer intent.Completer
	storeOpts []store.Option
	sections  map[string]any
	serve     bool
}

// Option configures NewApplication.
type Option func(*options)

// WithLogger sets the application logger. Required.
func WithLogger(logger modular.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLogMasking replaces the default masking rules applied to every log
// call.
func WithLogMasking(cfg *logmasker.Config) Option {
	return func(o *options) { o.masking = cfg }
}

// WithTransport replaces the configured outbound message provider.
func WithTransport(t notify.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithCompleter replaces the OpenAI client behind the intent parser.
func WithCompleter(c intent.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithStoreOptions passes options to the SQL store.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// WithConfigSection registers cfg for a module section before the module's
// own default, so it wins over RegisterConfig.
func WithConfigSection(name string, cfg any) Option {
	return func(o *options) { o.sections[name] = cfg }
}

// WithoutHTTP leaves out the API router and HTTP server, for commands that
// only touch the store or the scheduler.
func WithoutHTTP() Option {
	return func(o *options) { o.serve = false }
}

// NewApplication builds an observable modular application with every
// taskflow module registered. Nothing is initialized.
func NewApplication(opts ...Option) (modular.Application, error) {
	o := &options{serve: true, sections: map[string]any{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		return nil, ErrLoggerNotSet
	}

	logger, err := logmasker.New(o.logger, o.masking)
	if err != nil {
		return nil, fmt.Errorf("taskflow: %w", err)
	}

	base := modular.NewObservableApplication(modular.NewStdConfigProvider(&struct{}{}), logger)
	for name, cfg := range o.sections {
		base.RegisterConfigSection(name, modular.NewStdConfigProvider(cfg))
	}

	app, err := modular.NewApplication(
		modular.WithBaseApplication(base),
		modular.WithModules(modules(o)...),
	)
	if err != nil {
		return nil, fmt.Errorf("taskflow: %w", err)
	}
	return app, nil
}

// modules returns the module set in registration order. Initialization
// order comes from each module's dependencies.
func modules(o *options) []modular.Module {
	mods := []modular.Module{
		events.NewModule(),
		metrics.NewModule(),
		store.NewModule(o.storeOpts...),
		httpclient.NewModule(),
		intent.NewModule(o.completer),
		notify.NewModule(o.transport),
		tasks.NewModule(),
		intake.NewModule(),
		reminders.NewModule(),
	}
	if o.serve {
		mods = append(mods, api.NewModule(), httpserver.NewModule())
	}
	return mods
}

// Feeders returns the config feeders: the YAML file when it exists,
// then environment variables.
func Feeders(configFile string) []modular.Feeder {
	out := make([]modular.Feeder, 0, 2)
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			out = append(out, feeders.NewYamlFeeder(configFile))
		}
	}
	return append(out, feeders.NewEnvFeeder())
}
