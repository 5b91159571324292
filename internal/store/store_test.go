package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFile(filepath.Join(t.TempDir(), "nested", "state"), testLogger())

	want := record{Name: "watermarks", Count: 7}
	require.NoError(t, s.Save(ctx, "state.json", want))

	var got record
	require.NoError(t, s.Load(ctx, "state.json", &got))
	assert.Equal(t, want, got)
}

func TestFileLoadMissing(t *testing.T) {
	s := NewFile(t.TempDir(), testLogger())

	var got record
	err := s.Load(context.Background(), "absent.json", &got)
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	s := NewFile(dir, testLogger())

	require.NoError(t, s.Save(context.Background(), "state.json", record{Name: "x"}))

	_, err := os.Stat(filepath.Join(dir, "state.json"))
	assert.NoError(t, err)
}

func TestFileSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFile(dir, testLogger())
	require.NoError(t, s.Save(context.Background(), "state.json", record{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestFileDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewFile(t.TempDir(), testLogger())

	require.NoError(t, s.Save(ctx, "state.json", record{}))
	require.NoError(t, s.Delete(ctx, "state.json"))
	// Second delete of a missing object is not an error.
	assert.NoError(t, s.Delete(ctx, "state.json"))

	var got record
	assert.ErrorIs(t, s.Load(ctx, "state.json", &got), ErrNotExist)
}

func TestFileOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewFile(t.TempDir(), testLogger())

	require.NoError(t, s.Save(ctx, "state.json", record{Count: 1}))
	require.NoError(t, s.Save(ctx, "state.json", record{Count: 2}))

	var got record
	require.NoError(t, s.Load(ctx, "state.json", &got))
	assert.Equal(t, 2, got.Count)
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	var got record
	assert.ErrorIs(t, s.Load(ctx, "state.json", &got), ErrNotExist)

	require.NoError(t, s.Save(ctx, "state.json", record{Name: "mem", Count: 3}))
	require.NoError(t, s.Load(ctx, "state.json", &got))
	assert.Equal(t, record{Name: "mem", Count: 3}, got)

	require.NoError(t, s.Delete(ctx, "state.json"))
	assert.ErrorIs(t, s.Load(ctx, "state.json", &got), ErrNotExist)
}

func TestOpenPicksFileBackend(t *testing.T) {
	s, err := Open(context.Background(), "", "", t.TempDir(), testLogger())
	require.NoError(t, err)
	_, ok := s.(*File)
	assert.True(t, ok)
}
