package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/contextfleet/cli/internal/config"
	"github.com/contextfleet/cli/internal/sentry"
	"github.com/contextfleet/cli/internal/supervisor"
	"github.com/contextfleet/cli/internal/version"
	"github.com/contextfleet/cli/internal/workerpool"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type RunOptions struct {
	FleetFile string
	cfg       *config.Config
}

func newRunCommand(cfg *config.Config) *cobra.Command {
	opts := &RunOptions{
		cfg: cfg,
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "🏃 Run the worker fleet",
		Long: `Start every worker defined in the fleet file, keep them healthy,
and restart the ones that degrade. Runs in the foreground until interrupted.`,
		Example: `  # Run the fleet from the default ctxfleet.yaml
  ctxfleet run

  # Run a specific fleet file
  ctxfleet run --fleet ./fleet/prod.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.FleetFile, "fleet", cfg.FleetFile, "Fleet file describing the workers")

	return cmd
}

func (opts *RunOptions) Run(ctx context.Context) error {
	fleet, err := loadFleet(opts.FleetFile, opts.cfg)
	if err != nil {
		return err
	}

	logger, err := newLogger(opts.cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := sentry.Initialize(version.Version); err != nil {
		logger.Warn("error reporting disabled", zap.Error(err))
	}
	defer sentry.Flush()

	sup := supervisor.New(logger)
	pool := workerpool.New(logger)
	defer pool.CloseAll()

	for _, spec := range fleet.Workers {
		if err := sup.Register(workerConfig(spec, opts.cfg)); err != nil {
			return fmt.Errorf("failed to register worker %q: %w", spec.Name, err)
		}
		if err := pool.Register(poolConfig(spec, opts.cfg)); err != nil {
			return fmt.Errorf("failed to register pool %q: %w", spec.Name, err)
		}
	}

	headerContent := pterm.Sprintf(
		"%s\n\n%s %s\n%s %d",
		pterm.Bold.Sprint("🚀 Starting context worker fleet"),
		pterm.LightCyan("Fleet file:"),
		opts.FleetFile,
		pterm.LightCyan("Workers:"),
		len(fleet.Workers),
	)
	pterm.DefaultBox.
		WithBoxStyle(pterm.NewStyle(pterm.FgCyan)).
		Println(headerContent)

	startErrs := sup.StartAll(ctx)
	started := 0
	for _, spec := range fleet.Workers {
		if err := startErrs[spec.Name]; err != nil {
			pterm.Error.Printf("Worker %s failed to start: %v\n", spec.Name, err)
			sentry.CaptureError(err, map[string]string{"worker": spec.Name})
			continue
		}
		pterm.Success.Printf("Worker %s is running\n", pterm.Bold.Sprint(spec.Name))
		started++
	}
	if started == 0 {
		sup.Shutdown(context.Background())
		return fmt.Errorf("no worker started successfully")
	}

	pterm.Info.Println("Press Ctrl+C to stop the fleet")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	pterm.Info.Println("Stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*supervisor.DefaultStopTimeout)
	defer cancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	pterm.Success.Println("Fleet stopped")
	return nil
}
