package supervisor

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contextfleet/cli/internal/sentry"
)

// DefaultStopTimeout is how long Stop waits for a graceful exit before
// force-killing, when the caller has no better value.
const DefaultStopTimeout = 10 * time.Second

// Supervisor owns the OS-process lifecycle and health state of every
// registered worker server. All state mutations go through the supervisor
// mutex; worker processes themselves are independent OS processes.
type Supervisor struct {
	mu      sync.Mutex
	workers map[string]*worker

	prober *Prober
	logger *zap.Logger

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
}

// New creates a Supervisor. The caller owns its lifecycle: Register workers,
// Start/StartAll them, and call Shutdown at teardown.
func New(logger *zap.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		workers:        make(map[string]*worker),
		prober:         NewProber(probeTimeout),
		logger:         logger,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Register adds a worker configuration. Re-registering an existing name
// stops the old process and re-creates the runtime state; it does not error.
func (s *Supervisor) Register(cfg WorkerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	_, exists := s.workers[cfg.Name]
	s.mu.Unlock()

	if exists {
		s.logger.Warn("worker already registered, replacing",
			zap.String("worker", cfg.Name))
		if err := s.Stop(context.Background(), cfg.Name, DefaultStopTimeout); err != nil {
			s.logger.Warn("failed to stop replaced worker",
				zap.String("worker", cfg.Name), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.workers[cfg.Name] = &worker{cfg: cfg, state: StateStopped}
	s.mu.Unlock()

	s.logger.Info("worker registered",
		zap.String("worker", cfg.Name),
		zap.String("base_url", cfg.BaseURL()),
		zap.String("command", cfg.Command))
	return nil
}

// Start spawns the named worker and waits for its health path to answer.
// A no-op returning nil while the worker is RUNNING or STARTING. On success
// the worker is RUNNING and its health-check loop is active; on failure the
// process is force-terminated and the worker is CRASHED.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	s.mu.Lock()
	w, ok := s.workers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("worker %q is not registered", name)
	}
	if w.state == StateRunning || w.state == StateStarting {
		s.mu.Unlock()
		return nil
	}
	// A spawn during STOPPING would be clobbered by the in-flight Stop's
	// final state write and leak the new process.
	if w.state == StateStopping {
		s.mu.Unlock()
		return fmt.Errorf("worker %q is stopping, wait for it to stop before starting", name)
	}
	w.state = StateStarting
	w.lastErr = ""
	w.healthFailures = 0
	cfg := w.cfg
	s.mu.Unlock()

	cmd := exec.Command(cfg.Command, cfg.Args...)
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env
	setupProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.failStartup(name, fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.failStartup(name, fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return s.failStartup(name, fmt.Errorf("spawn %s: %w", cfg.Command, err))
	}

	// Forward both output streams line by line, then reap the process once
	// the pipes drain.
	var readers sync.WaitGroup
	readers.Add(2)
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		defer readers.Done()
		forwardOutput(s.logger, cfg.Name, "stdout", stdout)
	}()
	go func() {
		defer s.wg.Done()
		defer readers.Done()
		forwardOutput(s.logger, cfg.Name, "stderr", stderr)
	}()
	waitErr := make(chan error, 1)
	go func() {
		defer s.wg.Done()
		readers.Wait()
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	s.mu.Lock()
	w.cmd = cmd
	w.pid = cmd.Process.Pid
	w.waitErr = waitErr
	s.mu.Unlock()

	s.logger.Info("worker process spawned",
		zap.String("worker", cfg.Name), zap.Int("pid", cmd.Process.Pid))

	// Poll the health path until the worker answers or the startup budget
	// runs out.
	healthURL := cfg.HealthURL()
	deadline := time.After(cfg.StartupTimeout)
	ticker := time.NewTicker(startupPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.failStartup(name, ctx.Err())

		case exitErr, open := <-waitErr:
			if !open {
				exitErr = fmt.Errorf("process already reaped")
			}
			if exitErr == nil {
				exitErr = fmt.Errorf("exit status 0")
			}
			return s.failStartup(name,
				fmt.Errorf("worker exited during startup: %v", exitErr))

		case <-deadline:
			return s.failStartup(name,
				fmt.Errorf("health check did not succeed within %v", cfg.StartupTimeout))

		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := s.prober.Probe(probeCtx, healthURL)
			cancel()
			if err != nil {
				continue
			}
			return s.finishStartup(name)
		}
	}
}

// finishStartup promotes a STARTING worker to RUNNING and launches its
// health-check loop.
func (s *Supervisor) finishStartup(name string) error {
	s.mu.Lock()
	w, ok := s.workers[name]
	if !ok || w.state != StateStarting {
		// Stopped (or replaced) while starting up; nothing to promote.
		s.mu.Unlock()
		return nil
	}
	w.state = StateRunning
	w.startedAt = time.Now()
	w.lastHealthCheck = time.Now()
	w.healthFailures = 0
	loopCtx, cancel := context.WithCancel(s.shutdownCtx)
	w.healthCancel = cancel
	pid := w.pid
	s.mu.Unlock()

	s.wg.Add(1)
	go s.healthLoop(loopCtx, name)

	s.logger.Info("worker running",
		zap.String("worker", name), zap.Int("pid", pid))
	return nil
}

// failStartup force-terminates whatever remains of a failed startup, marks
// the worker CRASHED and records the error.
func (s *Supervisor) failStartup(name string, cause error) error {
	s.mu.Lock()
	w, ok := s.workers[name]
	if !ok || w.state != StateStarting {
		s.mu.Unlock()
		return cause
	}
	pid := w.pid
	w.state = StateCrashed
	w.lastErr = cause.Error()
	w.cmd = nil
	w.pid = 0
	s.mu.Unlock()

	if pid > 0 {
		if err := killProcessGroup(pid, false); err != nil {
			s.logger.Debug("force kill after failed startup",
				zap.String("worker", name), zap.Int("pid", pid), zap.Error(err))
		}
	}

	s.logger.Error("worker startup failed",
		zap.String("worker", name), zap.Error(cause))
	return fmt.Errorf("start worker %q: %w", name, cause)
}

// Stop terminates the named worker: cancels its health-check loop, asks the
// process to exit gracefully and force-kills it after timeout. A no-op when
// already STOPPED. Termination failures are logged, not returned; the worker
// always ends up STOPPED with its pid cleared.
func (s *Supervisor) Stop(ctx context.Context, name string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	s.mu.Lock()
	w, ok := s.workers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("worker %q is not registered", name)
	}
	if w.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	w.state = StateStopping
	if w.healthCancel != nil {
		w.healthCancel()
		w.healthCancel = nil
	}
	pid := w.pid
	waitErr := w.waitErr
	s.mu.Unlock()

	if pid > 0 {
		if err := killProcessGroup(pid, true); err != nil {
			s.logger.Warn("graceful termination request failed",
				zap.String("worker", name), zap.Int("pid", pid), zap.Error(err))
		}

		select {
		case <-waitErr:
		case <-time.After(timeout):
			s.logger.Warn("worker did not exit gracefully, force killing",
				zap.String("worker", name), zap.Int("pid", pid))
			if err := killProcessGroup(pid, false); err != nil {
				s.logger.Warn("force kill failed",
					zap.String("worker", name), zap.Int("pid", pid), zap.Error(err))
			}
			select {
			case <-waitErr:
			case <-time.After(2 * time.Second):
			}
		case <-ctx.Done():
			if err := killProcessGroup(pid, false); err != nil {
				s.logger.Warn("force kill failed",
					zap.String("worker", name), zap.Int("pid", pid), zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	// Finalize only if no concurrent Stop already did.
	if w.state == StateStopping {
		w.state = StateStopped
		w.cmd = nil
		w.pid = 0
	}
	s.mu.Unlock()

	s.logger.Info("worker stopped", zap.String("worker", name))
	return nil
}

// Restart stops the worker, pauses briefly, then starts it again.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	if err := s.Stop(ctx, name, DefaultStopTimeout); err != nil {
		return err
	}
	select {
	case <-time.After(restartPause):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Start(ctx, name)
}

// StartAll starts every registered worker concurrently. One worker failing
// never aborts the others; per-worker outcomes are returned keyed by name.
func (s *Supervisor) StartAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range s.names() {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := s.Start(ctx, name)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// StopAll stops every registered worker concurrently, best effort.
func (s *Supervisor) StopAll(ctx context.Context, timeout time.Duration) map[string]error {
	results := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range s.names() {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := s.Stop(ctx, name, timeout)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// Status reports the named worker's lifecycle state, counters and live
// resource usage.
func (s *Supervisor) Status(name string) (WorkerStatus, error) {
	s.mu.Lock()
	w, ok := s.workers[name]
	if !ok {
		s.mu.Unlock()
		return WorkerStatus{}, fmt.Errorf("worker %q is not registered", name)
	}
	st := snapshotStatus(w)
	s.mu.Unlock()

	if st.PID > 0 {
		if usage, alive := collectResources(st.PID); alive {
			st.CPUPercent = usage.cpuPercent
			st.MemoryRSS = usage.memoryRSS
			st.ThreadCount = usage.threads
		}
	}
	return st, nil
}

// AllStatus reports every registered worker, sorted by name.
func (s *Supervisor) AllStatus() []WorkerStatus {
	s.mu.Lock()
	statuses := make([]WorkerStatus, 0, len(s.workers))
	for _, w := range s.workers {
		statuses = append(statuses, snapshotStatus(w))
	}
	s.mu.Unlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	for i := range statuses {
		if statuses[i].PID > 0 {
			if usage, alive := collectResources(statuses[i].PID); alive {
				statuses[i].CPUPercent = usage.cpuPercent
				statuses[i].MemoryRSS = usage.memoryRSS
				statuses[i].ThreadCount = usage.threads
			}
		}
	}
	return statuses
}

// Shutdown stops every worker, cancels all background loops and waits for
// them to drain. Teardown failures are logged and swallowed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	for name, err := range s.StopAll(ctx, DefaultStopTimeout) {
		if err != nil {
			s.logger.Warn("shutdown: failed to stop worker",
				zap.String("worker", name), zap.Error(err))
		}
	}
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.prober.Close()
		return ctx.Err()
	}
	s.prober.Close()
	s.logger.Info("supervisor shut down")
	return nil
}

// healthLoop probes one RUNNING worker at its configured interval until the
// worker is stopped or the supervisor shuts down. It exits after initiating
// a restart; the restarted worker gets a fresh loop from Start.
func (s *Supervisor) healthLoop(ctx context.Context, name string) {
	defer s.wg.Done()

	s.mu.Lock()
	w, ok := s.workers[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	interval := w.cfg.HealthCheckInterval
	healthURL := w.cfg.HealthURL()
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			restart, backoff := s.healthCheckTick(ctx, name, healthURL)
			if !restart {
				continue
			}

			s.logger.Warn("scheduling worker restart",
				zap.String("worker", name), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			s.mu.Lock()
			if w, ok := s.workers[name]; ok {
				w.restartCount++
				w.lastRestartAt = time.Now()
			}
			s.mu.Unlock()

			// The supervisor context, not the loop context: Restart's Stop
			// cancels this loop mid-flight.
			if err := s.Restart(s.shutdownCtx, name); err != nil {
				s.logger.Error("automatic restart failed",
					zap.String("worker", name), zap.Error(err))
			}
			return
		}
	}
}

// healthCheckTick performs one probe and applies the failure policy.
// It reports whether a restart should happen and with what backoff delay.
func (s *Supervisor) healthCheckTick(ctx context.Context, name, healthURL string) (bool, time.Duration) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	probeErr := s.prober.Probe(probeCtx, healthURL)
	cancel()

	s.mu.Lock()
	w, ok := s.workers[name]
	if !ok {
		s.mu.Unlock()
		return false, 0
	}
	w.lastHealthCheck = time.Now()

	if probeErr == nil {
		w.healthFailures = 0
		if w.state == StateUnhealthy {
			w.state = StateRunning
			s.mu.Unlock()
			s.logger.Info("worker recovered", zap.String("worker", name))
			return false, 0
		}
		s.mu.Unlock()
		return false, 0
	}

	w.healthFailures++
	failures := w.healthFailures
	crossed := failures == unhealthyThreshold && w.state == StateRunning
	if crossed {
		w.state = StateUnhealthy
		w.lastErr = probeErr.Error()
	}
	restartCount := w.restartCount
	maxRestarts := w.cfg.MaxRestartAttempts
	backoffBase := w.cfg.BackoffBase
	s.mu.Unlock()

	s.logger.Warn("health check failed",
		zap.String("worker", name),
		zap.Int("consecutive_failures", failures),
		zap.Error(probeErr))

	if !crossed {
		return false, 0
	}

	if restartCount >= maxRestarts {
		err := fmt.Errorf("worker %q unhealthy with restart budget exhausted (%d/%d)",
			name, restartCount, maxRestarts)
		s.logger.Error("restart attempts exhausted, leaving worker unhealthy",
			zap.String("worker", name),
			zap.Int("restart_count", restartCount),
			zap.Int("max_restart_attempts", maxRestarts))
		sentry.CaptureError(err, map[string]string{"worker": name})
		return false, 0
	}

	backoff := time.Duration(math.Pow(backoffBase, float64(restartCount)) * float64(time.Second))
	if backoff > restartBackoffMax {
		backoff = restartBackoffMax
	}
	return true, backoff
}

// snapshotStatus copies reportable fields; the caller holds the lock.
func snapshotStatus(w *worker) WorkerStatus {
	st := WorkerStatus{
		Name:                w.cfg.Name,
		State:               w.state.String(),
		PID:                 w.pid,
		StartedAt:           w.startedAt,
		LastHealthCheck:     w.lastHealthCheck,
		HealthCheckFailures: w.healthFailures,
		RestartCount:        w.restartCount,
		LastRestartAt:       w.lastRestartAt,
		Error:               w.lastErr,
	}
	if (w.state == StateRunning || w.state == StateUnhealthy) && !w.startedAt.IsZero() {
		st.Uptime = time.Since(w.startedAt)
	}
	return st
}

// names returns the registered worker names.
func (s *Supervisor) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.workers))
	for name := range s.workers {
		names = append(names, name)
	}
	return names
}
