package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("Error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "INFO", "json")

	log.Debug("hidden")
	log.Info("admitted", "kind", "export", "job", "VM 1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "admitted", entry["msg"])
	assert.Equal(t, "export", entry["kind"])
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmshift.log")
	log, closeFn, err := New(Config{Level: "DEBUG", Output: path})
	require.NoError(t, err)
	log.Debug("hello")
	require.NoError(t, closeFn())
	assert.FileExists(t, path)
}
