package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestDispatcherLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(dl *DispatcherLogger)
		level string
	}{
		{"debug", func(dl *DispatcherLogger) { dl.Debug("test message", "key1", "value1", "key2", 42) }, "debug"},
		{"info", func(dl *DispatcherLogger) { dl.Info("test message", "key1", "value1", "key2", 42) }, "info"},
		{"error", func(dl *DispatcherLogger) { dl.Error("test message", "key1", "value1", "key2", 42) }, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
			tt.log(dl)

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "test message", entry["message"])
			assert.Equal(t, "value1", entry["key1"])
			assert.Equal(t, float64(42), entry["key2"])
		})
	}
}

func TestDispatcherLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	// Non-string keys and a trailing key without a value are dropped.
	dl.Info("odd", "key1", "v1", 7, "x", "trailing")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "v1", entry["key1"])
	assert.NotContains(t, entry, "trailing")
	assert.Len(t, entry, 3) // level, message, key1
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, "warn")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")

	buf.Reset()
	fallback := NewConsoleLogger(&buf, "bogus")
	fallback.Info().Msg("default info")
	fallback.Debug().Msg("below default")
	assert.NotContains(t, buf.String(), "below default")
	assert.Contains(t, buf.String(), "default info")
}
