package workerpool

import (
	"fmt"
	"time"
)

const (
	defaultMaxConnections = 4
	defaultRequestTimeout = 30 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryDelay     = 500 * time.Millisecond
)

// PoolConfig describes one worker's connection pool. Immutable after
// Register.
type PoolConfig struct {
	Name           string
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

// Validate checks required fields and fills in defaults.
func (c *PoolConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("pool config: name is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("pool config %q: port is required", c.Name)
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = defaultMaxConnections
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return nil
}

// BaseURL returns the worker's HTTP base URL.
func (c *PoolConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}
