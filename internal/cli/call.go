package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/contextfleet/cli/internal/config"
	"github.com/contextfleet/cli/internal/workerpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type CallOptions struct {
	FleetFile string
	Worker    string
	Method    string
	Params    string
	NoRetry   bool
	cfg       *config.Config
}

func newCallCommand(cfg *config.Config) *cobra.Command {
	opts := &CallOptions{
		cfg: cfg,
	}

	cmd := &cobra.Command{
		Use:   "call",
		Short: "📞 Invoke a method on a worker",
		Long:  `Send one request to a worker through its connection pool and print the response as JSON.`,
		Example: `  # Search the embeddings worker
  ctxfleet call --worker embeddings --method search --params '{"query": "tls setup"}'

  # Skip the retry policy
  ctxfleet call --worker embeddings --method search --no-retry`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.FleetFile, "fleet", cfg.FleetFile, "Fleet file describing the workers")
	cmd.Flags().StringVar(&opts.Worker, "worker", "", "Worker name (required)")
	cmd.Flags().StringVar(&opts.Method, "method", "", "Method to invoke (required)")
	cmd.Flags().StringVar(&opts.Params, "params", "", "Method parameters as a JSON object")
	cmd.Flags().BoolVar(&opts.NoRetry, "no-retry", false, "Fail on the first error instead of retrying")
	cmd.MarkFlagRequired("worker")
	cmd.MarkFlagRequired("method")

	return cmd
}

func (opts *CallOptions) Run(ctx context.Context) error {
	fleet, err := loadFleet(opts.FleetFile, opts.cfg)
	if err != nil {
		return err
	}

	var spec *config.WorkerSpec
	for i := range fleet.Workers {
		if fleet.Workers[i].Name == opts.Worker {
			spec = &fleet.Workers[i]
			break
		}
	}
	if spec == nil {
		return fmt.Errorf("worker %q is not in fleet file %s", opts.Worker, opts.FleetFile)
	}

	var params map[string]interface{}
	if opts.Params != "" {
		if err := json.Unmarshal([]byte(opts.Params), &params); err != nil {
			return fmt.Errorf("invalid --params JSON: %w", err)
		}
	}

	pool := workerpool.New(zap.NewNop())
	defer pool.CloseAll()
	if err := pool.Register(poolConfig(*spec, opts.cfg)); err != nil {
		return err
	}

	var result map[string]interface{}
	if opts.NoRetry {
		result, err = pool.ExecuteRequestOnce(ctx, opts.Worker, opts.Method, params)
	} else {
		result, err = pool.ExecuteRequest(ctx, opts.Worker, opts.Method, params)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
