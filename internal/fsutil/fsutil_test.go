package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCopyFile checks that the copy replaces an existing destination and leaves no temp file.
func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.WriteFile(src, []byte("fresh"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("stale content"), 0o600))

	require.NoError(t, CopyFile(src, dst, 0o644))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "fresh", string(data))
	require.NoFileExists(t, dst+".part")

	require.Error(t, CopyFile(filepath.Join(dir, "missing"), dst, 0o644))
}

// TestMove checks that the source is gone after a move.
func TestMove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.WriteFile(src, []byte("image"), 0o600))
	require.NoError(t, Move(src, dst, 0o644))

	require.NoFileExists(t, src)
	require.FileExists(t, dst)

	ok, err := Exists(dst)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Exists(dir)
	require.NoError(t, err)
	require.False(t, ok, "directories are not files")
}
