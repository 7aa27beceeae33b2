package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/remedyd/internal/config"
)

// configFor builds a LoggingConfig literal. Test helper.
func configFor(level, format string) config.LoggingConfig {
	return config.LoggingConfig{Level: level, Format: format}
}

// NewObserved returns a logger backed by an in-memory observer core, plus the
// recorded logs. For asserting on log output in tests.
func NewObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{zap: zap.New(core)}, logs
}
