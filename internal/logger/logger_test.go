package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		logsInfo      bool
	}{
		{"debug", "json", true},
		{"info", "json", true},
		{"warn", "json", false},
		{"info", "text", true},
		{"error", "text", false},
		{"", "text", true},
	}
	for _, tc := range tests {
		t.Run(tc.level+"/"+tc.format, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := New(tc.level, tc.format, &buf)
			require.NoError(t, err)

			log.Info("sampling started", "budget", "10s")
			if !tc.logsInfo {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), "sampling started")
			if tc.format == "json" {
				var rec map[string]any
				require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
				assert.Equal(t, "10s", rec["budget"])
			}
		})
	}
}

func TestNew_DebugTextAddsShortSource(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "text", &buf)
	require.NoError(t, err)
	log.Debug("tick")

	out := buf.String()
	assert.Contains(t, out, "source=logger/logger_test.go:")
	assert.False(t, strings.Contains(out, "/internal/logger/"))
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
	_, err = New("verbose", "text", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
}
