package launcher

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/aalemi-dev/kafka-workers/logger"
	"github.com/aalemi-dev/kafka-workers/producer"
	"github.com/aalemi-dev/kafka-workers/schema_registry"
	"github.com/aalemi-dev/kafka-workers/worker"
)

func (a *App) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [names...]",
		Short: "Run every registered worker, or the named ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), cfg, args)
		},
	}
}

// run starts the app, runs the cohort until every worker stops and stops the app.
// SIGINT and SIGTERM set the shutdown flag; workers still running ShutdownTimeout
// later are cancelled.
func (a *App) run(ctx context.Context, cfg *Config, names []string) error {
	var (
		launcher  *worker.Launcher
		producers *producer.Registry
		log       *logger.LoggerClient
	)
	app := a.newFx(cfg, modeRun, fx.Populate(&launcher, &producers, &log))
	if err := app.Err(); err != nil {
		return err
	}

	signalCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := startApp(signalCtx, app); err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	go func() {
		select {
		case <-signalCtx.Done():
		case <-runCtx.Done():
			return
		}
		log.Info("Shutdown requested", nil, map[string]interface{}{"timeout": cfg.ShutdownTimeout.String()})
		launcher.Stop()
		if cfg.ShutdownTimeout > 0 {
			timer := time.NewTimer(cfg.ShutdownTimeout)
			defer timer.Stop()
			select {
			case <-timer.C:
				log.Warn("Shutdown timed out, cancelling workers", nil)
				cancelRun()
			case <-runCtx.Done():
			}
		}
	}()

	runErr := launcher.Run(runCtx, names...)
	cancelRun()
	if runErr != nil {
		log.Error("Workers failed", runErr)
	}

	// Producers drain before the app stops, outside the stop deadline.
	closeErr := producers.CloseAll(context.WithoutCancel(ctx))

	stopCtx, cancelStop := context.WithTimeout(context.WithoutCancel(ctx), a.stopTimeout(cfg))
	defer cancelStop()
	return errors.Join(runErr, closeErr, app.Stop(stopCtx))
}

// stopTimeout bounds the fx stop hooks.
func (a *App) stopTimeout(cfg *Config) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}

// listCommand prints every worker instance and producer without connecting to
// anything.
func (a *App) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workers and producers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			var (
				workers   *worker.Registry
				producers *producer.Registry
			)
			app := a.newFx(cfg, modeInspect, fx.Populate(&workers, &producers))
			if err := app.Err(); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			a.printf(w, "KIND\tNAME\tINDEX\tTOPIC\n")
			for _, reg := range workers.Registered() {
				a.printf(w, "worker\t%s\t%d\t%s\n", reg.Name, reg.Index, reg.Class.Defaults.Topic)
			}
			for _, name := range producers.Names() {
				a.printf(w, "producer\t%s\t-\t-\n", name)
			}
			return w.Flush()
		},
	}
}

// schemaOptions mirrors the flags of the schemas command.
type schemaOptions struct {
	create            bool
	testCompatibility bool
	quiet             bool
}

// schemasCommand registers producer schemas, the deploy-time step before workers
// run with new schemas.
func (a *App) schemasCommand() *cobra.Command {
	var opts schemaOptions

	cmd := &cobra.Command{
		Use:   "schemas [producers...]",
		Short: "Update the key and value schemas of registered producers",
		Long: `Registers the local key and value schemas of each named producer, or of every
producer when none is named. A schema is registered only when it is new and
compatible with the latest version of its subject.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			return a.schemas(cmd, cfg, args, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.create, "create", "c", false, "register schemas without compatibility checks")
	cmd.Flags().BoolVarP(&opts.testCompatibility, "test-compatibility", "t", false, "only report compatibility and existence, never register")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide output")
	return cmd
}

// schemas updates the schemas of the named producers. Unknown names are reported
// and skipped.
func (a *App) schemas(cmd *cobra.Command, cfg *Config, names []string, opts schemaOptions) error {
	var producers *producer.Registry
	app := a.newFx(cfg, modeSchemas, fx.Populate(&producers))
	if err := app.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	defer producers.CloseAll(context.WithoutCancel(ctx)) //nolint:errcheck

	if len(names) == 0 {
		names = producers.Names()
	}

	var errs []error
	for _, name := range names {
		p, err := producers.Get(ctx, name)
		if errors.Is(err, producer.ErrNotRegistered) {
			a.printf(cmd.ErrOrStderr(), "Could not find producer %q\n", name)
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, schema := range p.Schemas() {
			if err := a.updateSchema(ctx, cmd, schema, opts); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// updateSchema applies opts to one schema and prints the outcome unless quiet.
func (a *App) updateSchema(ctx context.Context, cmd *cobra.Command, schema *schema_registry.Schema, opts schemaOptions) error {
	out := cmd.OutOrStdout()

	if opts.testCompatibility {
		compatible, err := schema.TestCompatibility(ctx)
		if err != nil {
			return err
		}
		exists, err := schema.AlreadyExists(ctx)
		if err != nil {
			return err
		}

		verdict := "compatible"
		if !compatible {
			verdict = "not compatible"
		}
		a.printf(out, "%s is %s with existing schema\n", schema.Subject, verdict)
		if exists {
			a.printf(out, "%s already exists\n", schema.Subject)
		} else {
			a.printf(out, "%s does not exist\n", schema.Subject)
		}
		return nil
	}

	if !opts.quiet {
		a.printf(out, "Updating %s\n", schema.Subject)
	}

	if opts.create {
		if _, err := schema.Register(ctx); err != nil {
			return err
		}
	} else if _, err := schema.Update(ctx); err != nil {
		return err
	}

	if !opts.quiet {
		id, resolved := schema.ID()
		if !resolved {
			id, _ = schema.GetLatest(ctx)
		}
		a.printf(out, "Schema ID: %d\nSchema Version: %d\nSchema Avro: %s\n\n", id, schema.Version(), schema.Raw)
	}
	return nil
}
