package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, filepath.Join(".config", "indexsync", "logs"))
}

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	assert.Equal(t, filepath.Join(DefaultLogDir(), "indexsync.log"), path)
}

func TestFindLogFile_ExplicitPathMustExist(t *testing.T) {
	_, err := FindLogFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}

func TestFindLogFile_ExplicitPathFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.log")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	found, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestSetupWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "debug",
		FilePath:      filepath.Join(dir, "indexsync.log"),
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("reconcile started", "root", "/srv/data")
	cleanup()

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"reconcile started"`)
	assert.Contains(t, string(data), `"root":"/srv/data"`)
}

func TestDebugConfigLowersLevel(t *testing.T) {
	cfg := DebugConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, DefaultConfig().FilePath, cfg.FilePath)
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, -4, int(LevelFromString("debug")))
	assert.Equal(t, 0, int(LevelFromString("info")))
	assert.Equal(t, 4, int(LevelFromString("warn")))
	assert.Equal(t, 8, int(LevelFromString("error")))
	assert.Equal(t, 0, int(LevelFromString("")))
}

func TestRenderSubstitutesKnownPlaceholders(t *testing.T) {
	got := Render("inserted {dir}/{filename}", map[string]any{
		"dir":      "aa/bb",
		"filename": "CC",
	})
	assert.Equal(t, "inserted aa/bb/CC", got)
}

func TestRenderLeavesUnknownPlaceholdersVerbatim(t *testing.T) {
	got := Render("skip {path}: {reason}", map[string]any{"path": "/x"})
	assert.Equal(t, "skip /x: {reason}", got)
}

func TestRenderNoFieldsReturnsTemplateUnchanged(t *testing.T) {
	assert.Equal(t, "no placeholders here", Render("no placeholders here", nil))
}

func TestRenderfLogsRenderedMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	Renderf(logger, slog.LevelInfo, "processing {path}", map[string]any{"path": "/root/aa"})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "processing /root/aa", decoded["msg"])
	assert.Equal(t, "/root/aa", decoded["path"])
}

func TestViewerTailFiltersByLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexsync.log")

	lines := []string{
		`{"time":"2026-08-03T10:00:00Z","level":"DEBUG","msg":"cache hit"}`,
		`{"time":"2026-08-03T10:00:01Z","level":"INFO","msg":"reconcile complete","inserted":3}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(joinLines(lines)), 0o644))

	viewer := NewViewer(ViewerConfig{Level: "info"}, &bytes.Buffer{})
	entries, err := viewer.Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "reconcile complete", entries[0].Msg)
	assert.EqualValues(t, float64(3), entries[0].Attrs["inserted"])
}

func TestViewerFormatEntryIncludesAttrs(t *testing.T) {
	viewer := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	entry := LogEntry{
		Time:    time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC),
		Level:   "INFO",
		Msg:     "reconcile complete",
		Attrs:   map[string]interface{}{"inserted": float64(3)},
		IsValid: true,
	}
	formatted := viewer.FormatEntry(entry)
	assert.Contains(t, formatted, "reconcile complete")
	assert.Contains(t, formatted, "inserted=3")
}

func TestViewerFollowStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexsync.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	viewer := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries := make(chan LogEntry, 1)
	err := viewer.Follow(ctx, path, entries)
	assert.NoError(t, err)
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}
