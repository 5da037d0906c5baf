// Package publish implements the publication stage: the verified image is
// moved into the downloads directory and the cache is reconciled with it.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/archburn/internal/checksum"
	"github.com/oshokin/archburn/internal/config"
	"github.com/oshokin/archburn/internal/domain/release"
	"github.com/oshokin/archburn/internal/fsutil"
	"github.com/oshokin/archburn/internal/logger"
)

// Result describes the published image.
type Result struct {
	// PublishedPath is the image in the downloads directory.
	PublishedPath string
	// CachePath is the durable copy.
	CachePath string
	// SHA256 is the hex digest shared by both copies.
	SHA256 string
	// CacheUpdated is false when the cache already held identical bytes.
	CacheUpdated bool
}

// Publish moves the image at workPath into downloadsDir and reconciles cacheDir.
// The working copy no longer exists afterwards.
func Publish(ctx context.Context, workPath, downloadsDir, cacheDir string) (*Result, error) {
	ctx = logger.WithName(ctx, "publish")

	result, err := publish(ctx, workPath, downloadsDir, cacheDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrPublication, err)
	}

	return result, nil
}

// publish does the work of Publish without the stage classification.
func publish(ctx context.Context, workPath, downloadsDir, cacheDir string) (*Result, error) {
	for _, dir := range []string{downloadsDir, cacheDir} {
		if err := os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	name := filepath.Base(workPath)
	result := &Result{
		PublishedPath: filepath.Join(downloadsDir, name),
		CachePath:     filepath.Join(cacheDir, name),
	}

	if err := fsutil.Move(workPath, result.PublishedPath, config.ImageFilePermissions); err != nil {
		return nil, fmt.Errorf("move into downloads: %w", err)
	}

	logger.InfoKV(ctx, "Image published", "path", result.PublishedPath)

	digest, err := checksum.File(result.PublishedPath, checksum.SHA256)
	if err != nil {
		return nil, err
	}

	result.SHA256 = digest

	cachedDigest, err := checksum.File(result.CachePath, checksum.SHA256)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if cachedDigest == digest {
		logger.DebugKV(ctx, "Cache already holds the image", "path", result.CachePath)

		return result, nil
	}

	if err = fsutil.CopyFile(result.PublishedPath, result.CachePath, config.ImageFilePermissions); err != nil {
		return nil, fmt.Errorf("update cache: %w", err)
	}

	result.CacheUpdated = true

	logger.InfoKV(ctx, "Cache updated", "path", result.CachePath)

	return result, nil
}
