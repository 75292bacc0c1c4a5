package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWritesToFileAndConsole(t *testing.T) {
	t.Cleanup(func() { _ = CloseAll() })
	dir := t.TempDir()
	var console bytes.Buffer

	log, err := Get("scheduler", Options{Dir: dir, Stderr: &console, Level: "debug"})
	require.NoError(t, err)
	log.Debug().Str("message_id", "m1").Msg("expiry_scheduled")

	data, err := os.ReadFile(filepath.Join(dir, "scheduler.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"scheduler"`)
	assert.Contains(t, string(data), `"message_id":"m1"`)
	assert.Contains(t, console.String(), "expiry_scheduled")
}

func TestGetCachesPerComponent(t *testing.T) {
	t.Cleanup(func() { _ = CloseAll() })
	var first, second bytes.Buffer

	a, err := Get("store", Options{Stderr: &first})
	require.NoError(t, err)
	b, err := Get("store", Options{Stderr: &second})
	require.NoError(t, err)

	a.Info().Msg("one")
	b.Info().Msg("two")
	assert.Contains(t, first.String(), "two")
	assert.Empty(t, second.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.log")
	fresh := filepath.Join(dir, "fresh.log")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	past := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	removed, err := CleanupOldLogs(dir, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)

	removed, err = CleanupOldLogs(filepath.Join(dir, "missing"), 7)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
