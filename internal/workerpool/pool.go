package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Pool manages one fixed-size client pool per registered worker and executes
// bounded, retrying requests against them. At most MaxConnections requests
// are ever concurrently in flight per worker.
type Pool struct {
	mu     sync.Mutex
	pools  map[string]*workerPool
	logger *zap.Logger
}

// workerPool holds the clients and accounting for a single worker.
type workerPool struct {
	cfg PoolConfig
	sem *semaphore.Weighted

	mu    sync.Mutex
	idle  []*PooledClient
	stats clientStats
}

// HealthResult is the outcome of a pool-level health check.
type HealthResult struct {
	Healthy bool          `json:"healthy"`
	Stats   StatsSnapshot `json:"stats"`
}

// New creates an empty Pool; the caller owns its lifecycle and must call
// CloseAll at teardown.
func New(logger *zap.Logger) *Pool {
	return &Pool{
		pools:  make(map[string]*workerPool),
		logger: logger,
	}
}

// Register creates MaxConnections unconnected clients and a counting bound
// of the same size for cfg.Name. Re-registering an existing name closes the
// old pool and re-creates it; it does not error.
func (p *Pool) Register(cfg PoolConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	clients := make([]*PooledClient, cfg.MaxConnections)
	for i := range clients {
		clients[i] = newPooledClient(cfg)
	}
	wp := &workerPool{
		cfg:  cfg,
		sem:  semaphore.NewWeighted(int64(cfg.MaxConnections)),
		idle: clients,
	}

	p.mu.Lock()
	old, exists := p.pools[cfg.Name]
	p.pools[cfg.Name] = wp
	p.mu.Unlock()

	if exists {
		p.logger.Warn("pool already registered, replacing",
			zap.String("pool", cfg.Name))
		old.closeClients()
	}

	p.logger.Info("pool registered",
		zap.String("pool", cfg.Name),
		zap.String("base_url", cfg.BaseURL()),
		zap.Int("max_connections", cfg.MaxConnections))
	return nil
}

// lookup returns the pool for name.
func (p *Pool) lookup(name string) (*workerPool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	wp, ok := p.pools[name]
	if !ok {
		return nil, fmt.Errorf("pool %q is not registered", name)
	}
	return wp, nil
}

// withClient borrows a client for the duration of fn. The caller blocks
// until a slot is free; the client is returned on every exit path. A caller
// never holds more than one client at a time.
func (p *Pool) withClient(ctx context.Context, name string, fn func(*PooledClient) error) error {
	wp, err := p.lookup(name)
	if err != nil {
		return err
	}

	if err := wp.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for pool slot: %w", err)
	}
	defer wp.sem.Release(1)

	wp.mu.Lock()
	// The semaphore bounds borrowers to the client count, so idle is never
	// empty here.
	client := wp.idle[len(wp.idle)-1]
	wp.idle = wp.idle[:len(wp.idle)-1]
	client.connect()
	wp.mu.Unlock()

	defer func() {
		wp.mu.Lock()
		wp.idle = append(wp.idle, client)
		wp.mu.Unlock()
	}()

	return fn(client)
}

// executeOnce performs a single attempt and records it in the pool's stats.
func (p *Pool) executeOnce(ctx context.Context, name, method string, params map[string]interface{}) (map[string]interface{}, error) {
	wp, err := p.lookup(name)
	if err != nil {
		return nil, err
	}

	// Time only the request itself; waiting for a pool slot is not latency
	// the worker caused.
	var result map[string]interface{}
	var duration time.Duration
	callErr := p.withClient(ctx, name, func(c *PooledClient) error {
		start := time.Now()
		var err error
		result, err = c.Call(ctx, method, params)
		duration = time.Since(start)
		return err
	})

	wp.mu.Lock()
	wp.stats.record(duration, callErr)
	wp.mu.Unlock()

	return result, callErr
}

// ExecuteRequest invokes method against the named worker with the pool's
// retry policy: up to RetryAttempts attempts with linear backoff
// (RetryDelay × attempt number) between them. After exhaustion the last
// error is returned. Every attempt updates the pool statistics.
func (p *Pool) ExecuteRequest(ctx context.Context, name, method string, params map[string]interface{}) (map[string]interface{}, error) {
	wp, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	attempts := wp.cfg.RetryAttempts
	retryDelay := wp.cfg.RetryDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := p.executeOnce(ctx, name, method, params)
		if err == nil {
			return result, nil
		}
		lastErr = err
		p.logger.Warn("request attempt failed",
			zap.String("pool", name),
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("request %q to %q failed after %d attempts: %w",
		method, name, attempts, lastErr)
}

// ExecuteRequestOnce invokes method without the retry policy.
func (p *Pool) ExecuteRequestOnce(ctx context.Context, name, method string, params map[string]interface{}) (map[string]interface{}, error) {
	return p.executeOnce(ctx, name, method, params)
}

// HealthCheck issues the distinguished status call against the named worker
// and returns the outcome together with a stats snapshot.
func (p *Pool) HealthCheck(ctx context.Context, name string) (HealthResult, error) {
	wp, err := p.lookup(name)
	if err != nil {
		return HealthResult{}, err
	}

	result, callErr := p.executeOnce(ctx, name, statusMethod, nil)

	healthy := false
	if callErr == nil {
		status, _ := result["status"].(string)
		healthy = status == "ok" || status == "healthy"
	}

	wp.mu.Lock()
	snap := wp.stats.snapshot()
	wp.mu.Unlock()

	return HealthResult{Healthy: healthy, Stats: snap}, nil
}

// HealthCheckAll health-checks every registered pool concurrently.
func (p *Pool) HealthCheckAll(ctx context.Context) map[string]HealthResult {
	p.mu.Lock()
	names := make([]string, 0, len(p.pools))
	for name := range p.pools {
		names = append(names, name)
	}
	p.mu.Unlock()

	results := make(map[string]HealthResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			res, err := p.HealthCheck(ctx, name)
			if err != nil {
				res = HealthResult{}
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// Stats returns a snapshot of the named pool's statistics.
func (p *Pool) Stats(name string) (StatsSnapshot, error) {
	wp, err := p.lookup(name)
	if err != nil {
		return StatsSnapshot{}, err
	}
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.stats.snapshot(), nil
}

// AllStats returns snapshots for every registered pool.
func (p *Pool) AllStats() map[string]StatsSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	all := make(map[string]StatsSnapshot, len(p.pools))
	for name, wp := range p.pools {
		wp.mu.Lock()
		all[name] = wp.stats.snapshot()
		wp.mu.Unlock()
	}
	return all
}

// CloseAll disconnects every pooled client across every pool and clears all
// tracking state. Best effort; disconnect problems are not fatal.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	pools := p.pools
	p.pools = make(map[string]*workerPool)
	p.mu.Unlock()

	for name, wp := range pools {
		wp.closeClients()
		p.logger.Info("pool closed", zap.String("pool", name))
	}
}

// closeClients disconnects whatever clients are currently in the pool.
func (wp *workerPool) closeClients() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	for _, c := range wp.idle {
		c.close()
	}
	wp.idle = nil
}
