package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &out), "line: %s", line)
	return out
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"loud":    zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q): expected %v, got %v", in, want, got)
		}
	}
	assert.True(t, ValidLevel("Warn"))
	assert.False(t, ValidLevel("loud"))
}

func TestJSONOutputWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json")

	log.WithFields(map[string]interface{}{"symbol": "VOO", "points": 42}).Infof("scored %s", "VOO")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "scored VOO", entry["message"])
	assert.Equal(t, "VOO", entry["symbol"])
	assert.Equal(t, float64(42), entry["points"])
	assert.Contains(t, entry, "time")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info("hidden")
	log.Debugf("hidden %d", 1)
	assert.Zero(t, buf.Len())

	log.WithError(errors.New("upstream down")).Warn("fetch failed")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "upstream down", entry["error"])
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "console")

	log.WithField("provider", "stooq").Debug("cycle started")

	out := buf.String()
	assert.Contains(t, out, "cycle started")
	assert.Contains(t, out, "provider=")
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("ignored")
	log.WithField("a", 1).Errorf("ignored %s", "too")
}
