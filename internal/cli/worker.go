package cli

import (
	"github.com/contextfleet/cli/internal/config"
	"github.com/spf13/cobra"
)

// newWorkerCommand creates the worker command
func newWorkerCommand(cfg *config.Config) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "🔧 Manage individual workers",
		Long:  `Start and manage single supervised workers outside a full fleet run`,
	}

	workerCmd.AddCommand(
		newWorkerStartCommand(cfg),
		newWorkerRestartCommand(cfg),
		newWorkerStatusCommand(cfg),
		newWorkerStopCommand(cfg),
	)

	return workerCmd
}
