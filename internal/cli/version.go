package cli

import (
	"fmt"

	"github.com/contextfleet/cli/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ctxfleet %s\n", version.GetVersion())
		},
	}
}
