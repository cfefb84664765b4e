package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	songErrors "github.com/YuminosukeSato/songstreams/pkg/errors"
)

func TestTestLoggerCapturesLevelsAndFields(t *testing.T) {
	logger, buffer := NewTestLogger(LevelDebug)

	logger.Debug("debug message", "key1", "value1", "number", 42)
	logger.Info("info message", OperationKey, OperationFit)
	logger.Warn("warning message", "warning_code", "TEST_WARNING")
	logger.Error("error message", fmt.Errorf("boom"), ErrorCodeKey, "TEST_ERROR")

	require.NotEmpty(t, buffer.String())
	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		assert.True(t, logger.ContainsMessage(msg), msg)
	}
	assert.True(t, logger.ContainsField("key1", "value1"))
	assert.True(t, logger.ContainsField("number", 42.0))
	assert.True(t, logger.ContainsField(ErrAttrKey, "boom"))
	assert.True(t, logger.ContainsField(ErrorCodeKey, "TEST_ERROR"))
}

func TestTestLoggerLevelFiltering(t *testing.T) {
	logger, _ := NewTestLogger(LevelWarn)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("shown warn")

	assert.False(t, logger.ContainsMessage("hidden debug"))
	assert.False(t, logger.ContainsMessage("hidden info"))
	assert.True(t, logger.ContainsMessage("shown warn"))
	assert.False(t, logger.Enabled(context.Background(), LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), LevelError))
}

func TestTestLoggerWith(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)

	ctxLogger := logger.With(ModelNameKey, "LinearRegression", StageKey, "train")
	ctxLogger.Info("contextual message", OperationKey, OperationFit)
	logger.Info("plain message")

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "LinearRegression", entries[0][ModelNameKey])
	assert.Equal(t, "train", entries[0][StageKey])
	assert.NotContains(t, entries[1], ModelNameKey)

	logger.Clear()
	entries, err = logger.GetLogEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestZerologProviderJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, "json", LevelInfo)

	logger := p.GetLoggerWithName("cleaner").With(StageKey, "clean")
	logger.Debug("not emitted")
	logger.Info("Rows cleaned", SamplesKey, 740, DroppedKey, 3, "ratio", 0.5)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Rows cleaned", entry["message"])
	assert.Equal(t, "cleaner", entry[ComponentKey])
	assert.Equal(t, "clean", entry[StageKey])
	assert.Equal(t, 740.0, entry[SamplesKey])
	assert.Equal(t, 0.5, entry["ratio"])
}

func TestZerologProviderErrorField(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, "json", LevelDebug)

	err := songErrors.NewSchemaError("streams", "column not found")
	p.GetLogger().Error("Stage failed", err, StageKey, "load")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Contains(t, entry[ErrAttrKey], "streams")
	assert.Equal(t, "load", entry[StageKey])
	assert.Contains(t, entry, ErrAttrKey+"_detail")
}

func TestZerologProviderSetLevel(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, "json", LevelError)
	p.GetLogger().Warn("dropped")
	assert.Empty(t, buf.String())

	p.SetLevel(LevelDebug)
	logger := p.GetLogger()
	assert.True(t, logger.Enabled(context.Background(), LevelDebug))
	logger.Debug("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestToLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
	}
	for _, tt := range tests {
		got, err := ToLogLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ToLogLevel("verbose")
	var verr *songErrors.ValidationError
	assert.True(t, songErrors.As(err, &verr))
}

func TestSetupLoggerRoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupLogger("info", "json", &buf))
	defer func() {
		songErrors.SetZerologWarnFunc(nil)
		SetProvider(NewZerologProvider(&buf, "console", LevelInfo))
	}()

	songErrors.Warn(songErrors.NewConvergenceWarning("adam", 200, "maximum iterations reached"))
	assert.Contains(t, buf.String(), "adam")
	assert.Contains(t, buf.String(), `"level":"warn"`)

	GetLoggerWithName("pipeline").Info("from global")
	assert.Contains(t, buf.String(), "from global")

	assert.Error(t, SetupLogger("info", "xml", &buf))
	assert.Error(t, SetupLogger("loud", "json", &buf))
}

func TestTestLoggerProvider(t *testing.T) {
	p, captured := NewTestLoggerProvider(LevelInfo)
	SetProvider(p)
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, "json", LevelInfo))

	GetLoggerWithName("evaluation").Info("Evaluated", RMSEKey, 1.5)
	assert.True(t, captured.ContainsField(ComponentKey, "evaluation"))
	assert.True(t, captured.ContainsField(RMSEKey, 1.5))

	p.SetLevel(LevelError)
	GetLogger().Info("suppressed")
	assert.False(t, captured.ContainsMessage("suppressed"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}
