package logging

import (
	"testing"

	"github.com/JakeFAU/leadpipe/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(config.LoggingConfig{Development: true, Level: "debug"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}

func TestNewProductionLoggerDefaultsToInfo(t *testing.T) {
	t.Parallel()

	logger, err := New(config.LoggingConfig{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be disabled")
	}
	logger.Info("production logger ready")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(config.LoggingConfig{Level: "shouty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
