// Package app provides the application context and dependency management
// for the clinmap CLI. It centralizes configuration, logging, and the
// lifecycle of shared resources such as the run ledger.
package app

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/agentstation/clinmap/internal/pipeline"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/ledger"
	"github.com/agentstation/clinmap/pkg/metrics"
)

// App represents the clinmap application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	// Configuration
	viper  *viper.Viper
	config *Config

	// Logger
	logger *zerolog.Logger

	// Global flag values, copied into config by setupCommand
	flags globalFlags

	// Command output; nil selects os.Stdout
	out io.Writer

	// Run ledger (lazy-initialized, singleton)
	mu     sync.Mutex
	ledger *ledger.Ledger
}

type globalFlags struct {
	configFile string
	verbose    bool
	quiet      bool
	noColor    bool
	format     string
	logLevel   string
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
		viper:   viper.New(),
	}

	config, err := LoadConfig(app.viper, "")
	if err != nil {
		return nil, err
	}
	app.config = config

	logger, err := NewLogger(config)
	if err != nil {
		return nil, err
	}
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Ledger returns the run ledger, opening it on first use. It returns nil
// without error when no ledger is configured.
func (a *App) Ledger(ctx context.Context) (*ledger.Ledger, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ledger != nil || a.config.Ledger == "" {
		return a.ledger, nil
	}

	l, err := ledger.Open(ctx, a.config.Ledger)
	if err != nil {
		return nil, errors.NewConfigError("ledger", "cannot open "+a.config.Ledger, err)
	}
	a.ledger = l
	return l, nil
}

// env assembles the run bookkeeping for one pipeline invocation.
func (a *App) env(ctx context.Context, settings map[string]any) (*pipeline.Env, error) {
	l, err := a.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	return &pipeline.Env{
		Ledger:      l,
		Metrics:     metrics.New(),
		MetricsFile: a.config.MetricsFile,
		ReportFile:  a.config.Report,
		Settings:    settings,
	}, nil
}

// Shutdown releases resources held by the application.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ledger == nil {
		return nil
	}
	err := a.ledger.Close()
	a.ledger = nil
	return err
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithOutput redirects command output (not logs) to w.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}
