package cli

import (
	"context"
	"path/filepath"

	"github.com/contextfleet/cli/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type WorkerRestartOptions struct {
	FleetFile  string
	Name       string
	Foreground bool
	cfg        *config.Config
}

func newWorkerRestartCommand(cfg *config.Config) *cobra.Command {
	opts := &WorkerRestartOptions{
		cfg: cfg,
	}

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "🔄 Restart a supervised worker",
		Long: `Stop a background worker supervisor if one is running, then start a
fresh one. The operator escape hatch for a worker whose automatic restart
budget is exhausted.`,
		Example: `  # Restart the embeddings worker
  ctxfleet worker restart --name embeddings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.FleetFile, "fleet", cfg.FleetFile, "Fleet file describing the workers")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Worker name (required)")
	cmd.Flags().BoolVar(&opts.Foreground, "foreground", false, "Run the new supervisor in the foreground")
	cmd.MarkFlagRequired("name")

	return cmd
}

func (opts *WorkerRestartOptions) Run(ctx context.Context) error {
	dir, err := workerDir(opts.Name)
	if err != nil {
		return err
	}
	pidFile := filepath.Join(dir, "supervisor.pid")

	// The daemon child re-runs these args after the stop already happened;
	// by then the PID file is gone and this is a plain start.
	if info, err := ReadDaemonInfo(pidFile); err == nil && IsProcessRunning(info.PID) {
		pterm.Info.Printf("Stopping worker %s...\n", pterm.Bold.Sprint(opts.Name))
		if err := StopDaemon(pidFile); err != nil {
			return err
		}
	}

	startOpts := &WorkerStartOptions{
		FleetFile:  opts.FleetFile,
		Name:       opts.Name,
		Foreground: opts.Foreground,
		cfg:        opts.cfg,
	}
	return startOpts.Run(ctx)
}
