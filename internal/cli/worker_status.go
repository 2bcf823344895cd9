package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/contextfleet/cli/internal/config"
	"github.com/spf13/cobra"
)

type WorkerStatusOptions struct {
	Name string
	cfg  *config.Config
}

func newWorkerStatusCommand(cfg *config.Config) *cobra.Command {
	opts := &WorkerStatusOptions{
		cfg: cfg,
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "📊 Check a supervised worker",
		Long:  `Check the status of a background worker supervisor`,
		Example: `  # Check the embeddings worker
  ctxfleet worker status --name embeddings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Worker name (required)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func (opts *WorkerStatusOptions) Run(ctx context.Context) error {
	dir, err := workerDir(opts.Name)
	if err != nil {
		return err
	}
	pidFile := filepath.Join(dir, "supervisor.pid")

	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return fmt.Errorf("no supervised worker named %q (PID file not found: %s)", opts.Name, pidFile)
	}

	info, err := ReadDaemonInfo(pidFile)
	if err != nil {
		return fmt.Errorf("failed to read worker info: %w", err)
	}

	running := IsProcessRunning(info.PID)

	if running {
		fmt.Println("✅ Status:           RUNNING")
	} else {
		fmt.Println("❌ Status:           STOPPED (stale PID file)")
	}
	fmt.Printf("   Worker:           %s\n", info.Worker)
	fmt.Printf("   Supervisor PID:   %d\n", info.PID)
	fmt.Printf("   State Directory:  %s\n", info.WorkerDir)
	fmt.Printf("   Log File:         %s\n", info.LogFile)
	fmt.Printf("   Started At:       %s\n", info.StartedAt.Format("2006-01-02 15:04:05"))
	if running {
		fmt.Printf("   Uptime:           %s\n", time.Since(info.StartedAt).Round(time.Second))
		fmt.Printf("   Stop worker:      ctxfleet worker stop --name %s\n", opts.Name)
	} else {
		fmt.Printf("   Clean PID file:   rm %s\n", pidFile)
	}

	return nil
}
