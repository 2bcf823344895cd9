package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Prober issues lightweight liveness probes against worker health endpoints.
type Prober struct {
	client *resty.Client
}

// NewProber creates a prober whose individual probes time out after timeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = probeTimeout
	}
	return &Prober{
		client: resty.New().SetTimeout(timeout),
	}
}

// Probe performs a GET against url and returns nil when the worker answered
// with a success status code.
func (p *Prober) Probe(ctx context.Context, url string) error {
	resp, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health probe: %s returned %d", url, resp.StatusCode())
	}
	return nil
}

// Close releases idle connections held by the prober.
func (p *Prober) Close() {
	p.client.GetClient().CloseIdleConnections()
}
