package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library form of d.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// FleetFile is the on-disk description of the workers to supervise.
type FleetFile struct {
	Workers []WorkerSpec `yaml:"workers"`
}

// WorkerSpec describes one worker: how to launch it and how to talk to it.
// Zero-valued fields fall back to the environment defaults in Config.
type WorkerSpec struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port"`
	HealthPath string `yaml:"health_path,omitempty"`

	StartupTimeout      Duration `yaml:"startup_timeout,omitempty"`
	HealthCheckInterval Duration `yaml:"health_check_interval,omitempty"`
	MaxRestartAttempts  int      `yaml:"max_restart_attempts,omitempty"`
	BackoffBase         float64  `yaml:"backoff_base,omitempty"`

	MaxConnections int      `yaml:"max_connections,omitempty"`
	RequestTimeout Duration `yaml:"request_timeout,omitempty"`
	RetryAttempts  int      `yaml:"retry_attempts,omitempty"`
	RetryDelay     Duration `yaml:"retry_delay,omitempty"`
}

// LoadFleet reads and validates the fleet file at path.
func LoadFleet(path string) (*FleetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet file: %w", err)
	}

	var fleet FleetFile
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("failed to parse fleet file %s: %w", path, err)
	}

	if len(fleet.Workers) == 0 {
		return nil, fmt.Errorf("fleet file %s defines no workers", path)
	}
	seen := make(map[string]bool)
	for i, w := range fleet.Workers {
		if w.Name == "" {
			return nil, fmt.Errorf("fleet file %s: worker %d has no name", path, i)
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("fleet file %s: duplicate worker name %q", path, w.Name)
		}
		seen[w.Name] = true
		if w.Command == "" {
			return nil, fmt.Errorf("fleet file %s: worker %q has no command", path, w.Name)
		}
		if w.Port <= 0 {
			return nil, fmt.Errorf("fleet file %s: worker %q has no port", path, w.Name)
		}
	}
	return &fleet, nil
}
