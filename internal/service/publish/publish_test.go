package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/archburn/internal/domain/release"
)

const testImage = "archlinux-2025.03.11-x86_64.iso"

// dirs is a work, downloads and cache directory triple.
type dirs struct {
	work, downloads, cache string
}

// newDirs creates a work dir holding the image; the targets do not exist yet.
func newDirs(t *testing.T, content string) dirs {
	t.Helper()

	root := t.TempDir()
	d := dirs{
		work:      filepath.Join(root, "work"),
		downloads: filepath.Join(root, "home", "Downloads"),
		cache:     filepath.Join(root, "home", ".cache", "archlinux"),
	}

	require.NoError(t, os.MkdirAll(d.work, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d.work, testImage), []byte(content), 0o600))

	return d
}

// requireIdentical checks that the published and cached copies hold the same bytes.
func requireIdentical(t *testing.T, result *Result, want string) {
	t.Helper()

	published, err := os.ReadFile(result.PublishedPath)
	require.NoError(t, err)
	require.Equal(t, want, string(published))

	cached, err := os.ReadFile(result.CachePath)
	require.NoError(t, err)
	require.Equal(t, want, string(cached))
}

// TestPublish_FreshCache checks directory creation, the move and the cache copy.
func TestPublish_FreshCache(t *testing.T) {
	t.Parallel()

	d := newDirs(t, "image")

	result, err := Publish(context.Background(), filepath.Join(d.work, testImage), d.downloads, d.cache)
	require.NoError(t, err)
	require.True(t, result.CacheUpdated)
	require.Len(t, result.SHA256, 64)
	require.NoFileExists(t, filepath.Join(d.work, testImage))

	requireIdentical(t, result, "image")
}

// TestPublish_IdenticalCacheUntouched checks that an up-to-date cache entry is not rewritten.
func TestPublish_IdenticalCacheUntouched(t *testing.T) {
	t.Parallel()

	d := newDirs(t, "image")
	cachePath := filepath.Join(d.cache, testImage)

	require.NoError(t, os.MkdirAll(d.cache, 0o755))
	require.NoError(t, os.WriteFile(cachePath, []byte("image"), 0o600))

	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(cachePath, old, old))

	result, err := Publish(context.Background(), filepath.Join(d.work, testImage), d.downloads, d.cache)
	require.NoError(t, err)
	require.False(t, result.CacheUpdated)

	info, err := os.Stat(cachePath)
	require.NoError(t, err)
	require.True(t, info.ModTime().Equal(old))

	requireIdentical(t, result, "image")
}

// TestPublish_StaleCacheReplaced checks that a diverging cache entry is overwritten.
func TestPublish_StaleCacheReplaced(t *testing.T) {
	t.Parallel()

	d := newDirs(t, "verified image")

	require.NoError(t, os.MkdirAll(d.cache, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d.cache, testImage), []byte("stale"), 0o600))

	result, err := Publish(context.Background(), filepath.Join(d.work, testImage), d.downloads, d.cache)
	require.NoError(t, err)
	require.True(t, result.CacheUpdated)

	requireIdentical(t, result, "verified image")
}

// TestPublish_Failure checks that an unusable downloads directory is a publication error.
func TestPublish_Failure(t *testing.T) {
	t.Parallel()

	d := newDirs(t, "image")

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := Publish(context.Background(), filepath.Join(d.work, testImage), filepath.Join(blocker, "Downloads"), d.cache)
	require.ErrorIs(t, err, release.ErrPublication)
	require.FileExists(t, filepath.Join(d.work, testImage))
}
