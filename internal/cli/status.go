package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/contextfleet/cli/internal/config"
	"github.com/contextfleet/cli/internal/supervisor"
	"github.com/contextfleet/cli/internal/workerpool"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type StatusOptions struct {
	FleetFile string
	Timeout   time.Duration
	cfg       *config.Config
}

func newStatusCommand(cfg *config.Config) *cobra.Command {
	opts := &StatusOptions{
		cfg: cfg,
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "📊 Check fleet health",
		Long:  `Health-check every worker in the fleet file and print per-worker request statistics.`,
		Example: `  # Check the default fleet
  ctxfleet status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.FleetFile, "fleet", cfg.FleetFile, "Fleet file describing the workers")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Overall health check timeout")

	return cmd
}

func (opts *StatusOptions) Run(ctx context.Context) error {
	fleet, err := loadFleet(opts.FleetFile, opts.cfg)
	if err != nil {
		return err
	}

	// Health checks are one-shot; keep the logging quiet.
	pool := workerpool.New(zap.NewNop())
	defer pool.CloseAll()

	for _, spec := range fleet.Workers {
		if err := pool.Register(poolConfig(spec, opts.cfg)); err != nil {
			return fmt.Errorf("failed to register pool %q: %w", spec.Name, err)
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	results := pool.HealthCheckAll(checkCtx)

	// Probe the health endpoints directly as well; a worker can answer its
	// health path while failing its request endpoint, and vice versa.
	prober := supervisor.NewProber(2 * time.Second)
	defer prober.Close()
	endpointUp := make(map[string]bool, len(fleet.Workers))
	for _, spec := range fleet.Workers {
		wc := workerConfig(spec, opts.cfg)
		err := prober.Probe(checkCtx, wc.HealthURL())
		endpointUp[spec.Name] = err == nil
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := pterm.TableData{
		{"Worker", "Endpoint", "Healthy", "Requests", "Success Rate", "Avg Latency", "Last Error"},
	}
	unhealthy := 0
	for _, name := range names {
		res := results[name]
		endpoint := pterm.LightGreen("up")
		if !endpointUp[name] {
			endpoint = pterm.LightRed("down")
		}
		health := pterm.LightGreen("yes")
		if !res.Healthy {
			health = pterm.LightRed("no")
		}
		if !res.Healthy || !endpointUp[name] {
			unhealthy++
		}
		rows = append(rows, []string{
			name,
			endpoint,
			health,
			fmt.Sprintf("%d", res.Stats.TotalRequests),
			fmt.Sprintf("%.1f%%", res.Stats.SuccessRate),
			res.Stats.AverageRequestTime.Round(time.Millisecond).String(),
			res.Stats.LastError,
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}

	if unhealthy > 0 {
		return fmt.Errorf("%d of %d workers unhealthy", unhealthy, len(names))
	}
	pterm.Success.Printf("All %d workers healthy\n", len(names))
	return nil
}
