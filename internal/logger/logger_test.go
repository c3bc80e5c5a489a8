package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"production", "PROD", "development", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l.SugaredLogger)
	}

	prod, _ := New("production")
	assert.False(t, prod.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel))
	dev, _ := New("development")
	assert.True(t, dev.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestKeyValueFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("report_id", "r-1")

	l.Debug("dropped")
	l.Warn("brand skipped", "brand", "rady", "rows", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "brand skipped", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "r-1", fields["report_id"])
	assert.Equal(t, "rady", fields["brand"])
	assert.EqualValues(t, 3, fields["rows"])
}
