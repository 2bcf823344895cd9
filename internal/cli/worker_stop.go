package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/contextfleet/cli/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type WorkerStopOptions struct {
	Name string
	cfg  *config.Config
}

func newWorkerStopCommand(cfg *config.Config) *cobra.Command {
	opts := &WorkerStopOptions{
		cfg: cfg,
	}

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "🛑 Stop a supervised worker",
		Long:  `Stop a background worker supervisor and the worker process it manages`,
		Example: `  # Stop the embeddings worker
  ctxfleet worker stop --name embeddings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Worker name (required)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func (opts *WorkerStopOptions) Run(ctx context.Context) error {
	dir, err := workerDir(opts.Name)
	if err != nil {
		return err
	}
	pidFile := filepath.Join(dir, "supervisor.pid")

	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return fmt.Errorf("no supervised worker named %q (PID file not found: %s)", opts.Name, pidFile)
	}

	pterm.Info.Printf("Stopping worker %s...\n", pterm.Bold.Sprint(opts.Name))
	if err := StopDaemon(pidFile); err != nil {
		return err
	}
	pterm.Success.Printf("Worker %s stopped\n", pterm.Bold.Sprint(opts.Name))
	return nil
}
