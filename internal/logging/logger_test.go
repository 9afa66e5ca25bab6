package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)

	level, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	logger, err := New(Config{Level: "warn", Format: "console", Fields: map[string]string{"service": "snapfeed"}})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))

	_, err = New(Config{Level: "nope"})
	assert.Error(t, err)
}

func TestTestLogger(t *testing.T) {
	logger := NewTestLogger()
	logger.Warn("remote write failed")
	logger.AssertLogged(t, zapcore.WarnLevel, "write failed")
	logger.AssertNotLogged(t, zapcore.ErrorLevel, "write failed")
	assert.Len(t, logger.All(), 1)
}
