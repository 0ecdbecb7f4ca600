package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "racer.log")
	log, err := New(&Config{LogFile: path, MaxSize: 1, Development: true})
	require.NoError(t, err)

	log.WithComponent("rpc-engine").Debug("probe finished")
	log.WithOperation("send").Info("race won")
	log.LogError("relay failed", errors.New("http 502"))
	require.NoError(t, log.Sync())

	entries := readEntries(t, path)
	require.Len(t, entries, 3)

	assert.Equal(t, "DEBUG", entries[0]["level"])
	assert.Equal(t, "rpc-engine", entries[0]["component"])
	assert.Contains(t, entries[0], "timestamp")

	assert.Equal(t, "send", entries[1]["operation"])
	assert.NotEmpty(t, entries[1]["correlation_id"])

	assert.Equal(t, "http 502", entries[2]["error"])
}

func TestNew_InfoLevelInProduction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "racer.log")
	log, err := New(&Config{LogFile: path, MaxSize: 1})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("visible")

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible", entries[0]["msg"])
}

func TestWithOperation_UniqueCorrelation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "racer.log")
	log, err := New(&Config{LogFile: path, MaxSize: 1})
	require.NoError(t, err)

	log.WithOperation("read").Info("a")
	log.WithOperation("read").Info("b")

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0]["correlation_id"], entries[1]["correlation_id"])
}

func TestTrackPerformance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "racer.log")
	log, err := New(&Config{LogFile: path, MaxSize: 1, Development: true})
	require.NoError(t, err)

	end := log.TrackPerformance("initial_probe")
	end()

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "Operation completed", entries[1]["msg"])
	assert.Contains(t, entries[1], "duration_ms")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "bot.log", cfg.LogFile)
	assert.True(t, cfg.Console)
	assert.False(t, cfg.Development)
}
