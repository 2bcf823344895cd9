package cli

import (
	"fmt"

	"github.com/contextfleet/cli/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the process logger. Debug mode switches to the
// development encoder; outputPaths overrides stderr when set (used by the
// background worker supervisor to log into the worker directory).
func newLogger(cfg *config.Config, outputPaths ...string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Debug {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	if len(outputPaths) > 0 {
		zapCfg.OutputPaths = outputPaths
		zapCfg.ErrorOutputPaths = outputPaths
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
