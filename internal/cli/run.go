package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/config"
	"github.com/roach88/cellrules/internal/logger"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [definitions-dir]",
		Short: "Start the rule engine",
		Long: `Start the rule engine with the devices and alarms of a definitions
directory.

Settings come from the config file, then CELLRULES_* environment
variables. A definitions directory given as argument overrides both.
Cells are exchanged with the MQTT broker unless mqtt.broker is empty.

Example:
  cellrules run --config /etc/cellrules/config.yaml
  cellrules run ./definitions --verbose`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file")

	return cmd
}

func runEngine(opts *RunOptions, args []string, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if len(args) == 1 {
		cfg.Definitions = args[0]
	}

	level, ok := logger.ParseLevel(cfg.LogLevel)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid log level %q", cfg.LogLevel))
	}
	if opts.Verbose {
		level = zap.DebugLevel
	}
	log := logger.NewWriter(cmd.ErrOrStderr(), level)
	defer func() { _ = log.Sync() }()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(logger.ToContext(parentCtx, log), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, &cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	if cfg.Metrics.Listen != "" {
		d.serveMetrics(ctx, cfg.Metrics.Listen)
	}

	d.engine.RunRules()

	fmt.Fprintf(cmd.OutOrStdout(), "Engine started with %d devices and %d alarms.\n", d.devices, d.alarms)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := d.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	log.Info("engine stopped gracefully")
	return nil
}
