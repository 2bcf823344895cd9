package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/contextfleet/cli/internal/config"
	"github.com/contextfleet/cli/internal/sentry"
	"github.com/contextfleet/cli/internal/supervisor"
	"github.com/contextfleet/cli/internal/version"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type WorkerStartOptions struct {
	FleetFile  string
	Name       string
	Foreground bool
	cfg        *config.Config
}

func newWorkerStartCommand(cfg *config.Config) *cobra.Command {
	opts := &WorkerStartOptions{
		cfg: cfg,
	}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "🚀 Start one supervised worker",
		Long: `Start a single worker from the fleet file under its own supervisor.
By default the supervisor detaches into the background and logs into the
worker's state directory.`,
		Example: `  # Supervise the embeddings worker in the background
  ctxfleet worker start --name embeddings

  # Keep the supervisor in the foreground
  ctxfleet worker start --name embeddings --foreground`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.FleetFile, "fleet", cfg.FleetFile, "Fleet file describing the workers")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Worker name (required)")
	cmd.Flags().BoolVar(&opts.Foreground, "foreground", false, "Run the supervisor in the foreground")
	cmd.MarkFlagRequired("name")

	return cmd
}

func (opts *WorkerStartOptions) Run(ctx context.Context) error {
	fleet, err := loadFleet(opts.FleetFile, opts.cfg)
	if err != nil {
		return err
	}

	var spec *config.WorkerSpec
	for i := range fleet.Workers {
		if fleet.Workers[i].Name == opts.Name {
			spec = &fleet.Workers[i]
			break
		}
	}
	if spec == nil {
		return fmt.Errorf("worker %q is not in fleet file %s", opts.Name, opts.FleetFile)
	}

	dir, err := workerDir(opts.Name)
	if err != nil {
		return err
	}
	pidFile := filepath.Join(dir, "supervisor.pid")
	logFile := filepath.Join(dir, "supervisor.log")

	if info, err := ReadDaemonInfo(pidFile); err == nil && IsProcessRunning(info.PID) {
		return fmt.Errorf("worker %q is already supervised (PID %d)", opts.Name, info.PID)
	}

	if !opts.Foreground && !isDaemonChild() {
		pterm.Info.Printf("Starting supervisor for %s in the background\n", pterm.Bold.Sprint(opts.Name))
		pterm.Info.Printf("Logs: %s\n", logFile)
		pterm.Info.Printf("Stop: ctxfleet worker stop --name %s\n", opts.Name)
		return Daemonize()
	}

	var logger *zap.Logger
	if opts.Foreground {
		logger, err = newLogger(opts.cfg)
	} else {
		logger, err = newLogger(opts.cfg, logFile)
	}
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := sentry.Initialize(version.Version); err != nil {
		logger.Warn("error reporting disabled", zap.Error(err))
	}
	defer sentry.Flush()

	info := &DaemonInfo{
		PID:       os.Getpid(),
		Worker:    opts.Name,
		WorkerDir: dir,
		LogFile:   logFile,
		PIDFile:   pidFile,
		StartedAt: time.Now(),
	}
	if err := writePIDFile(pidFile, info); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	sup := supervisor.New(logger)
	if err := sup.Register(workerConfig(*spec, opts.cfg)); err != nil {
		return err
	}
	if err := sup.Start(ctx, opts.Name); err != nil {
		sentry.CaptureError(err, map[string]string{"worker": opts.Name})
		return fmt.Errorf("worker %q failed to start: %w", opts.Name, err)
	}
	logger.Info("worker supervised",
		zap.String("worker", opts.Name),
		zap.String("pid_file", pidFile))
	if opts.Foreground {
		pterm.Success.Printf("Worker %s is running, press Ctrl+C to stop\n", pterm.Bold.Sprint(opts.Name))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*supervisor.DefaultStopTimeout)
	defer cancel()
	return sup.Shutdown(shutdownCtx)
}
