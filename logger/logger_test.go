package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{"JSON output mode", true},
		{"Console output mode", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			require.NoError(t, Initialize(tt.jsonOutput))
			assert.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.True(t, ShouldLogTrace(3))
	assert.False(t, ShouldLogTrace(2))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := WithJobID(context.Background(), "job-1")
	ctx = WithComponent(ctx, "run.batch")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{FieldJobID, "job-1", FieldComponent, "run.batch"}, fields)
	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestLoggerFromContext(t *testing.T) {
	saved := Logger
	t.Cleanup(func() { Logger = saved })
	core, logs := observer.New(zapcore.InfoLevel)
	Logger = zap.New(core).Sugar()

	LoggerFromContext(WithJobID(context.Background(), "job-7")).Info("record done")
	LoggerFromContext(context.Background()).Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "job-7", entries[0].ContextMap()[FieldJobID])
	assert.NotContains(t, entries[1].ContextMap(), FieldJobID)
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, InitializeWithLevel(false, zapcore.WarnLevel))
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel))

	SetLevel(zapcore.DebugLevel)
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}
