package logging

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func resetLogger() {
	logger = nil
	once = sync.Once{}
}

func TestGetLoggerFallback(t *testing.T) {
	resetLogger()
	assert.NotNil(t, GetLogger())
}

func TestGetLoggerSingleton(t *testing.T) {
	resetLogger()
	assert.NoError(t, Initialize(true))

	l1 := GetLogger()
	l2 := GetLogger()
	assert.Same(t, l1, l2)
}

func TestInitializeIdempotent(t *testing.T) {
	resetLogger()
	assert.NoError(t, Initialize(true))
	first := logger

	assert.NoError(t, Initialize(false))
	assert.Same(t, first, logger)
}

func TestHelperMethods(t *testing.T) {
	resetLogger()
	core, logs := observer.New(zap.DebugLevel)
	logger = zap.New(core)

	Debug("debug msg")
	Info("info msg", zap.String("key", "val"))
	Warn("warn msg")
	Error("error msg")

	assert.Equal(t, 4, logs.Len())
	assert.Equal(t, zap.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, zap.InfoLevel, logs.All()[1].Level)
	assert.Equal(t, zap.WarnLevel, logs.All()[2].Level)
	assert.Equal(t, zap.ErrorLevel, logs.All()[3].Level)
	assert.Equal(t, "val", logs.All()[1].ContextMap()["key"])
}
