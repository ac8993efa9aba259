package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("debug", "json", zapcore.AddSync(&buf))
	require.NoError(t, err)

	l.Debug("revalidated", zap.String("key", "stats"))

	assert.Contains(t, buf.String(), `"msg":"revalidated"`)
	assert.Contains(t, buf.String(), `"key":"stats"`)
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("warn", "console", zapcore.AddSync(&buf))
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("loud", "console", zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)

	_, err = New("info", "xml", zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestInitAndGetLogger(t *testing.T) {
	require.NoError(t, InitLogger("info", "console"))
	assert.NotNil(t, GetLogger())
	Sync()
}
