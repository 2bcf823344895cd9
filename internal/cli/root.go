package cli

import (
	"github.com/contextfleet/cli/internal/config"
	"github.com/spf13/cobra"
)

func Execute(cfg *config.Config) error {
	rootCmd := &cobra.Command{
		Use:   "ctxfleet",
		Short: "🚀 ctxfleet - Context retrieval worker fleet manager",
		Long: `ctxfleet supervises a fleet of context retrieval worker servers and
routes requests to them through bounded connection pools.

Quick Start:
  • Run the fleet:     ctxfleet run
  • Check health:      ctxfleet status
  • Call a worker:     ctxfleet call --worker <name> --method <method>
  • Background worker: ctxfleet worker start --name <name>`,
		Example: `  # Supervise every worker in ctxfleet.yaml
  ctxfleet run

  # Health-check the fleet
  ctxfleet status

  # Invoke a method on one worker
  ctxfleet call --worker embeddings --method search --params '{"query": "tls setup"}'`,
		SilenceUsage: true,
	}

	// Add subcommands
	rootCmd.AddCommand(
		newRunCommand(cfg),
		newStatusCommand(cfg),
		newCallCommand(cfg),
		newWorkerCommand(cfg),
		newVersionCommand(),
	)

	return rootCmd.Execute()
}
