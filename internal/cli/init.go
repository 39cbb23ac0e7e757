// Package cli holds the cobra commands and the startup steps they share:
// env loading, config validation, logging, storage and AMQP wiring.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/config"
	applog "conti/internal/log"
	"conti/internal/services"
)

// App bundles what a command needs once startup succeeded.
type App struct {
	Config  *config.Config
	Logger  *applog.Logger
	Backend backend.Backend
	// AMQP is nil when AMQP_URL is unset or the broker was unreachable.
	AMQP *amqp.Client

	cleanups []func() error
}

type bootstrapOptions struct {
	envFiles  []string
	logLevel  string
	component string
	withAMQP  bool
	logOutput io.Writer
}

// SetupLogger builds the process logger and installs it as the slog default.
func SetupLogger(level, component string, out io.Writer) *applog.Logger {
	lvl, _ := config.ParseLogLevel(level)
	if out == nil {
		out = os.Stdout
	}
	logger := applog.New(applog.Config{Level: lvl, Component: component, Output: out})
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig reads env files and the environment. --log-level wins over LOG_LEVEL.
func LoadAndValidateConfig(envFiles []string, logLevel string) (*config.Config, error) {
	config.LoadDotEnv(envFiles...)
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bootstrap(ctx context.Context, opts bootstrapOptions) (*App, error) {
	cfg, err := LoadAndValidateConfig(opts.envFiles, opts.logLevel)
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg.LogLevel, opts.component, opts.logOutput)

	app := &App{Config: cfg, Logger: logger}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", backendCfg.Type, err)
	}
	app.Backend = result.Backend
	app.cleanups = append(app.cleanups, result.Cleanup)

	if opts.withAMQP {
		app.connectAMQP(ctx)
	}
	return app, nil
}

func (a *App) connectAMQP(ctx context.Context) {
	if a.Config.AMQPURL == "" {
		a.Logger.InfoContext(ctx, "AMQP disabled, running without events or queued processing")
		return
	}
	client, err := amqp.NewClient(a.Config.AMQPURL, a.Config.AMQPExchange, a.Config.AMQPQueue)
	if err != nil {
		a.Logger.WarnContext(ctx, "Failed to connect to AMQP, continuing without it", "error", err)
		return
	}
	a.AMQP = client
	a.cleanups = append(a.cleanups, client.Close)
	a.Logger.InfoContext(ctx, "AMQP client initialized",
		"exchange", a.Config.AMQPExchange,
		"queue", a.Config.AMQPQueue)
}

// Publisher returns the event publisher, or nil without AMQP.
func (a *App) Publisher() services.EventPublisher {
	if a.AMQP == nil {
		return nil
	}
	return a.AMQP
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanups = nil
	return errors.Join(errs...)
}

// SignalContext is canceled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
