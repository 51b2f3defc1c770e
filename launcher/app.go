package launcher

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/aalemi-dev/kafka-workers/consumer"
	"github.com/aalemi-dev/kafka-workers/kafka"
	"github.com/aalemi-dev/kafka-workers/logger"
	"github.com/aalemi-dev/kafka-workers/metrics"
	"github.com/aalemi-dev/kafka-workers/producer"
	"github.com/aalemi-dev/kafka-workers/schema_registry"
	"github.com/aalemi-dev/kafka-workers/tracer"
	"github.com/aalemi-dev/kafka-workers/worker"
)

// Setup registers the workers and producers of a process. It runs once per command,
// after the dependencies in env are built.
type Setup func(env Env, workers *worker.Registry, producers *producer.Registry) error

// App is the command line of a worker process.
type App struct {
	// name is the root command name
	name    string
	setup   Setup
	options []fx.Option

	// cfgFile and logLevel are bound to persistent flags
	cfgFile  string
	logLevel string
}

// New returns the app named name. options are added to the fx application of every
// command, for example to provide dependencies used by setup.
//
// Example:
//
//	func main() {
//	    launcher.New("orders", func(env launcher.Env, workers *worker.Registry, producers *producer.Registry) error {
//	        if err := producers.Register("audit", nil, env.Producer(auditConfig)); err != nil {
//	            return err
//	        }
//	        return workers.Register("orders", launcher.ConsumerClass(env, ordersConfig), 2)
//	    }).Main()
//	}
func New(name string, setup Setup, options ...fx.Option) *App {
	return &App{name: name, setup: setup, options: options}
}

// Main runs the command line and exits non-zero when it fails.
func (a *App) Main() {
	if err := a.Command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command returns the root command with the run, list and schemas subcommands.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           a.name,
		Short:         "Run supervised Kafka workers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./workers.yaml or $HOME/.config/workers.yaml)")
	root.PersistentFlags().StringVarP(&a.logLevel, "log-level", "L", "", "log level (debug, info, warning, error); overrides log_level")

	root.AddCommand(a.runCommand(), a.listCommand(), a.schemasCommand())
	return root
}

// loadConfig loads the config file and applies the --log-level flag.
func (a *App) loadConfig() (*Config, error) {
	cfg, err := Load(a.cfgFile)
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	return cfg, nil
}

// mode selects the optional modules of a command.
type mode int

const (
	// modeInspect builds the registries without any network module
	modeInspect mode = iota

	// modeRun adds the metrics server
	modeRun

	// modeSchemas adds a shared schema registry client when a URL is configured
	modeSchemas
)

// newFx builds the dependency graph for one command. Setup runs while the graph is
// built, so a returned app without error has every worker and producer registered.
func (a *App) newFx(cfg *Config, m mode, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.Supply(cfg, cfg.loggerConfig(), cfg.tracerConfig()),
		fx.WithLogger(func(l *logger.LoggerClient) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Zap.Named("fx")}
		}),

		logger.FXModule,
		tracer.FXModule,
		kafka.FXModule,
		worker.FXModule,
		producer.FXModule,

		fx.Provide(
			func(l *logger.LoggerClient) kafka.Logger { return l.Named("kafka") },
			func(l *logger.LoggerClient) worker.Logger { return l.Named("worker") },
			func(l *logger.LoggerClient) producer.Logger { return l.Named("producer") },
			func(l *logger.LoggerClient) schema_registry.Logger { return l.Named("schema_registry") },
			NewEnv,
		),
		fx.Decorate(func(r *producer.Registry, env Env) *producer.Registry {
			return r.WithDefaults(env.Producer)
		}),
		fx.Invoke(a.register),
	}

	switch m {
	case modeRun:
		opts = append(opts, fx.Supply(cfg.metricsConfig()), metrics.FXModule)
	case modeSchemas:
		if cfg.SchemaRegistryURL != "" {
			opts = append(opts, fx.Supply(schema_registry.Config{URL: cfg.SchemaRegistryURL}), schema_registry.FXModule)
		}
	}

	opts = append(opts, a.options...)
	opts = append(opts, extra...)
	return fx.New(opts...)
}

// register runs setup and applies the per-worker overrides of the config.
func (a *App) register(env Env, workers *worker.Registry, producers *producer.Registry, launcher *worker.Launcher) error {
	if a.setup != nil {
		if err := a.setup(env, workers, producers); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}
	for _, name := range workers.Names() {
		if override, ok := env.Config.Worker(name); ok {
			launcher.Override(name, override.Spec())
		}
	}
	return nil
}

// ConsumerClass is a shorthand for registering a consumer worker with env defaults.
func ConsumerClass(env Env, cfg consumer.Config) worker.Class {
	return consumer.NewClass(env.Consumer(cfg))
}

// printf ignores write errors; output goes to the terminal.
func (a *App) printf(out io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(out, format, args...)
}

// startApp runs the start hooks within the app's start timeout.
func startApp(ctx context.Context, app *fx.App) error {
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	return app.Start(startCtx)
}
