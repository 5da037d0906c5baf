package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/archburn/internal/domain/release"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()
	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.yaml"))
	r, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, r)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns the same record.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "cache", DefaultFilename)
	repo := NewFileRepository(file)

	want := &release.Record{
		Version:       "2025.03.11",
		Filename:      "archlinux-2025.03.11-x86_64.iso",
		SHA256:        "0f1e2d3c",
		PublishedPath: "/home/user/Downloads/archlinux-2025.03.11-x86_64.iso",
		CachePath:     "/home/user/.cache/archlinux/archlinux-2025.03.11-x86_64.iso",
		PublishedAt:   time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want.Version, got.Version)
	require.Equal(t, want.SHA256, got.SHA256)
	require.Equal(t, want.PublishedPath, got.PublishedPath)
	require.True(t, want.PublishedAt.Equal(got.PublishedAt))

	_, err = os.Stat(file + ".tmp")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFileRepository_Corrupted ensures undecodable files are reported.
func TestFileRepository_Corrupted(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(file, []byte("version: [unterminated"), 0o600))

	_, err := NewFileRepository(file).Load(context.Background())
	require.ErrorContains(t, err, "decode release record")
}
