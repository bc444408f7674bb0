// Package logging provides the package-wide structured logger. It mirrors
// the teacher's internal/v1/logging package: a lazily-initialized, global
// *zap.Logger behind a sync.Once, selectable between a colorized
// development encoder and a JSON production encoder.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// Initialize sets up the global logger. Subsequent calls are no-ops; the
// first call's development flag wins for the lifetime of the process.
func Initialize(development bool) error {
	var err error
	once.Do(func() {
		var config zap.Config
		if development {
			config = zap.NewDevelopmentConfig()
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			config = zap.NewProductionConfig()
			config.EncoderConfig.TimeKey = "timestamp"
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

		logger, err = config.Build(zap.AddCallerSkip(1))
	})
	return err
}

// GetLogger returns the global logger, falling back to an unconfigured
// development logger if Initialize was never called (e.g. in tests that
// import this package transitively).
func GetLogger() *zap.Logger {
	if logger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

// Info logs at InfoLevel.
func Info(msg string, fields ...zap.Field) { GetLogger().Info(msg, fields...) }

// Warn logs at WarnLevel.
func Warn(msg string, fields ...zap.Field) { GetLogger().Warn(msg, fields...) }

// Error logs at ErrorLevel.
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// Debug logs at DebugLevel.
func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }

// Fatal logs at FatalLevel and terminates the process.
func Fatal(msg string, fields ...zap.Field) { GetLogger().Fatal(msg, fields...) }
