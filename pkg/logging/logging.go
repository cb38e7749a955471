// Package logging builds the process logger: zap underneath, ectologger on top.
package logging

import (
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level string
	// Pretty switches to zap's console encoder for local use.
	Pretty bool
	// Fields are attached to every entry.
	Fields map[string]any
}

// New returns the ectologger and the zap logger backing it, so callers can
// Sync on shutdown.
func New(cfg Config) (ectologger.Logger, *zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var zapConfig zap.Config
	if cfg.Pretty {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{"stderr"}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)
	if len(cfg.Fields) > 0 {
		logger = logger.WithFields(cfg.Fields)
	}
	return logger, zapLogger, nil
}

func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InvalidLevel, fmt.Errorf("unknown log level %q", level)
}

// Nop discards everything.
func Nop() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
