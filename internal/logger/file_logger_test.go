package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestFilePath(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC) }

	assert.Equal(t, filepath.Join("out", "guard_2025-03-09.log"), FilePath(Options{Name: "guard", Dir: "out", Now: now}))
	assert.Equal(t, filepath.Join(DefaultLogDir, "tpsl_2025-03-09.log"), FilePath(Options{Now: now}))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Name: "guard", Dir: dir, Level: "info"})
	require.NoError(t, err)

	l.Info("decision", zap.String("kind", "PLACE_TP"), zap.Bool("allowed", true))
	l.Debug("filtered out")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "decision", entry["msg"])
	assert.Equal(t, "guard", entry["logger"])
	assert.Equal(t, "PLACE_TP", entry["kind"])
	assert.Equal(t, true, entry["allowed"])
}

func TestNew_ConsoleOnly(t *testing.T) {
	l, err := New(Options{ConsoleOnly: true})
	require.NoError(t, err)
	assert.Empty(t, l.Path())
	assert.NoError(t, l.Close())
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "verbose", ConsoleOnly: true})
	assert.Error(t, err)
}
