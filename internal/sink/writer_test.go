package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbodecode/internal/errors"
	"turbodecode/pkg/exception"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestWriterCommit(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(DefaultConfig(dir), []string{"BCJR", "MAP"})
	require.NoError(t, err)

	require.NoError(t, w.Write("MAP", "X001", "hello"))
	require.NoError(t, w.Write("BCJR", "X001", "hello"))
	require.NoError(t, w.Write("MAP", "X002", ""))
	require.NoError(t, w.Write("BCJR", "X002", "a,b"))
	assert.Equal(t, 2, w.Lines("MAP"))

	// nothing is visible before commit
	for _, name := range listDir(t, dir) {
		assert.NotEqual(t, "MAP_Output.csv", name)
		assert.NotEqual(t, "BCJR_Output.csv", name)
	}

	require.NoError(t, w.Commit())
	assert.ElementsMatch(t, []string{"BCJR_Output.csv", "MAP_Output.csv"}, listDir(t, dir))

	data, err := os.ReadFile(filepath.Join(dir, "MAP_Output.csv"))
	require.NoError(t, err)
	assert.Equal(t, "X001,hello\nX002,\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "BCJR_Output.csv"))
	require.NoError(t, err)
	assert.Equal(t, "X001,hello\nX002,a,b\n", string(data))

	for _, name := range []string{"BCJR_Output.csv", "MAP_Output.csv"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm(), name)
	}

	err = w.Write("MAP", "X003", "late")
	assert.True(t, errors.Is(err, exception.ErrSinkWrite))
	assert.NoError(t, w.Abort())
	assert.Len(t, listDir(t, dir), 2)
}

func TestWriterAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "SOVA_Output.csv")
	require.NoError(t, os.WriteFile(existing, []byte("old\n"), 0o644))

	w, err := Open(DefaultConfig(dir), []string{"SOVA", "HYBRID"})
	require.NoError(t, err)
	require.NoError(t, w.Write("SOVA", "K", "v"))
	require.NoError(t, w.Abort())

	assert.Equal(t, []string{"SOVA_Output.csv"}, listDir(t, dir))
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(data))
}

func TestOpenAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(DefaultConfig(dir), []string{"BCJR", "MAP", "bad/name"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrSinkOpen), "got %v", err)
	assert.Empty(t, listDir(t, dir))
}

func TestOpenMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	_, err := Open(DefaultConfig(dir), []string{"MAP"})
	assert.True(t, errors.Is(err, exception.ErrSinkOpen))
}

func TestOpenRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(DefaultConfig(dir), nil)
	assert.True(t, errors.Is(err, exception.ErrSinkOpen))

	_, err = Open(DefaultConfig(dir), []string{"MAP", "MAP"})
	assert.True(t, errors.Is(err, exception.ErrSinkOpen))
	assert.True(t, errors.Is(err, exception.ErrInvalidArgument))

	cfg := DefaultConfig(dir)
	cfg.FilePattern = "output.csv"
	_, err = Open(cfg, []string{"MAP"})
	assert.True(t, errors.Is(err, exception.ErrSinkOpen))

	assert.Empty(t, listDir(t, dir))
}

func TestWriteRejectsLineBreaks(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(DefaultConfig(dir), []string{"MAP"})
	require.NoError(t, err)
	defer w.Abort()

	err = w.Write("MAP", "K", "a\nb")
	assert.True(t, errors.Is(err, exception.ErrSinkWrite))
	assert.True(t, errors.Is(err, ErrLineBreak))

	err = w.Write("MAP", "K\r", "ab")
	assert.True(t, errors.Is(err, ErrLineBreak))

	err = w.Write("SOVA", "K", "ab")
	assert.True(t, errors.Is(err, ErrNoSink))
	assert.Equal(t, 0, w.Lines("MAP"))
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig("out")
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "MAP_Output.csv", cfg.FileName("MAP"))
	assert.Equal(t, "BCJR_Output.csv", Config{}.FileName("BCJR"))

	cfg.FilePattern = "%s-%s.csv"
	assert.Error(t, cfg.Validate())
	assert.Error(t, Config{FilePattern: "%s", BufferSize: -1}.Validate())
	assert.Error(t, Config{FilePattern: "%s", Delimiter: '\n'}.Validate())
	assert.True(t, errors.Is(Config{FilePattern: "%s", Perm: os.ModeDir | 0o644}.Validate(), exception.ErrInvalidArgument))
	assert.Equal(t, os.FileMode(0o644), Config{}.withDefaults().Perm)
}

func TestWriterCustomPerm(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Perm = 0o640
	w, err := Open(cfg, []string{"SOVA"})
	require.NoError(t, err)
	require.NoError(t, w.Write("SOVA", "K", "v"))
	require.NoError(t, w.Commit())

	info, err := os.Stat(filepath.Join(dir, "SOVA_Output.csv"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}
