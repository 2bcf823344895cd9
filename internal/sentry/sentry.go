package sentry

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled bool

// Initialize sets up Sentry if SENTRY_DSN is provided; without it every
// capture call is a no-op.
func Initialize(release string) error {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	environment := os.Getenv("SENTRY_ENVIRONMENT")
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		Debug:            os.Getenv("SENTRY_DEBUG") == "true",
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	enabled = true
	return nil
}

// CaptureError reports an operational fault with optional tags.
func CaptureError(err error, tags map[string]string) {
	if !enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush drains pending events; call before process exit.
func Flush() {
	if !enabled {
		return
	}
	sentry.Flush(2 * time.Second)
}
