package cli

import (
	"errors"
	"os"

	"github.com/contextfleet/cli/internal/config"
	"github.com/contextfleet/cli/internal/supervisor"
	"github.com/contextfleet/cli/internal/workerpool"
)

// loadFleet reads the fleet file; when the file does not exist and the
// environment describes a single worker, that worker becomes the fleet.
func loadFleet(path string, cfg *config.Config) (*config.FleetFile, error) {
	fleet, err := config.LoadFleet(path)
	if err == nil {
		return fleet, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		if spec, ok := cfg.EnvWorker(); ok {
			return &config.FleetFile{Workers: []config.WorkerSpec{spec}}, nil
		}
	}
	return nil, err
}

// workerConfig maps a fleet entry onto the supervisor's config, filling
// unset fields from the environment defaults.
func workerConfig(spec config.WorkerSpec, cfg *config.Config) supervisor.WorkerConfig {
	wc := supervisor.WorkerConfig{
		Name:                spec.Name,
		Host:                spec.Host,
		Port:                spec.Port,
		HealthPath:          spec.HealthPath,
		StartupTimeout:      spec.StartupTimeout.Std(),
		HealthCheckInterval: spec.HealthCheckInterval.Std(),
		MaxRestartAttempts:  spec.MaxRestartAttempts,
		BackoffBase:         spec.BackoffBase,
		Command:             spec.Command,
		Args:                spec.Args,
		Env:                 spec.Env,
	}
	if wc.Host == "" {
		wc.Host = cfg.WorkerHost
	}
	if wc.HealthPath == "" {
		wc.HealthPath = cfg.HealthPath
	}
	if wc.StartupTimeout <= 0 {
		wc.StartupTimeout = cfg.StartupTimeout
	}
	if wc.HealthCheckInterval <= 0 {
		wc.HealthCheckInterval = cfg.HealthCheckInterval
	}
	if wc.MaxRestartAttempts <= 0 {
		wc.MaxRestartAttempts = cfg.MaxRestartAttempts
	}
	if wc.BackoffBase <= 0 {
		wc.BackoffBase = cfg.BackoffBase
	}
	return wc
}

// poolConfig maps a fleet entry onto the pool's config the same way.
func poolConfig(spec config.WorkerSpec, cfg *config.Config) workerpool.PoolConfig {
	pc := workerpool.PoolConfig{
		Name:           spec.Name,
		Host:           spec.Host,
		Port:           spec.Port,
		MaxConnections: spec.MaxConnections,
		RequestTimeout: spec.RequestTimeout.Std(),
		RetryAttempts:  spec.RetryAttempts,
		RetryDelay:     spec.RetryDelay.Std(),
	}
	if pc.Host == "" {
		pc.Host = cfg.WorkerHost
	}
	if pc.MaxConnections <= 0 {
		pc.MaxConnections = cfg.MaxConnections
	}
	if pc.RequestTimeout <= 0 {
		pc.RequestTimeout = cfg.RequestTimeout
	}
	if pc.RetryAttempts <= 0 {
		pc.RetryAttempts = cfg.RetryAttempts
	}
	if pc.RetryDelay <= 0 {
		pc.RetryDelay = cfg.RetryDelay
	}
	return pc
}
