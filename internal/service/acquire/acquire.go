// Package acquire implements the acquisition stage: it gathers the torrent
// descriptor, the signature and the checksum manifest of a release and puts
// the image into the working directory, from the cache when possible.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/archburn/internal/config"
	"github.com/oshokin/archburn/internal/domain/release"
	"github.com/oshokin/archburn/internal/fsutil"
	"github.com/oshokin/archburn/internal/logger"
	"github.com/oshokin/archburn/internal/transfer"
)

// errNameMismatch is returned when the torrent describes a different file than expected.
var errNameMismatch = errors.New("torrent payload name mismatch")

// Fetcher downloads auxiliary files.
type Fetcher interface {
	// DownloadToFile stores the body of url at dest.
	DownloadToFile(ctx context.Context, url, dest string) error
}

// Downloader retrieves a torrent payload.
type Downloader interface {
	// Download stores the payload of d in destDir and returns its path.
	Download(ctx context.Context, d *transfer.Descriptor, destDir string) (string, error)
}

// Result lists the files the stage left in the working directory.
type Result struct {
	// ArtifactPath is the image.
	ArtifactPath string
	// TorrentPath is the torrent descriptor.
	TorrentPath string
	// SignaturePath is the detached signature.
	SignaturePath string
	// ManifestPath is the checksum manifest.
	ManifestPath string
	// FromCache is true when the image was copied from the cache.
	FromCache bool
}

// Stage acquires release images.
type Stage struct {
	// cfg supplies URL templates and the cache directory.
	cfg *config.Config
	// fetcher downloads auxiliary files.
	fetcher Fetcher
	// downloader retrieves the image on a cache miss.
	downloader Downloader
}

// New creates the stage.
func New(cfg *config.Config, fetcher Fetcher, downloader Downloader) *Stage {
	return &Stage{
		cfg:        cfg,
		fetcher:    fetcher,
		downloader: downloader,
	}
}

// Acquire places artifact and its auxiliary files into workDir.
func (s *Stage) Acquire(ctx context.Context, artifact release.Artifact, workDir string) (*Result, error) {
	ctx = logger.WithName(ctx, "acquire")

	result, err := s.acquire(ctx, artifact, workDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrAcquisition, err)
	}

	return result, nil
}

// acquire does the work of Acquire without the stage classification.
func (s *Stage) acquire(ctx context.Context, artifact release.Artifact, workDir string) (*Result, error) {
	result := &Result{
		ArtifactPath:  artifact.PathIn(workDir),
		TorrentPath:   filepath.Join(workDir, artifact.Filename+".torrent"),
		SignaturePath: filepath.Join(workDir, artifact.Filename+".sig"),
		ManifestPath:  filepath.Join(workDir, s.cfg.ManifestName()),
	}

	auxiliary := []struct {
		url  string
		dest string
	}{
		{s.cfg.TorrentURLFor(artifact), result.TorrentPath},
		{s.cfg.SignatureURLFor(artifact), result.SignaturePath},
		{s.cfg.ChecksumURLFor(artifact), result.ManifestPath},
	}

	for _, file := range auxiliary {
		logger.DebugKV(ctx, "Fetching auxiliary file", "url", file.url)

		if err := s.fetcher.DownloadToFile(ctx, file.url, file.dest); err != nil {
			return nil, err
		}
	}

	descriptor, err := transfer.LoadDescriptor(result.TorrentPath)
	if err != nil {
		return nil, err
	}

	if descriptor.Name() != artifact.Filename {
		return nil, fmt.Errorf("%w: torrent has %q, want %q", errNameMismatch, descriptor.Name(), artifact.Filename)
	}

	cachePath := artifact.PathIn(s.cfg.CacheDir)

	cached, err := fsutil.Exists(cachePath)
	if err != nil {
		return nil, err
	}

	if cached {
		logger.InfoKV(ctx, "Using cached image", "path", cachePath)

		var valid bool

		valid, err = s.reuseCached(ctx, descriptor, cachePath, result.ArtifactPath)
		if err != nil {
			return nil, err
		}

		if valid {
			result.FromCache = true

			return result, nil
		}
	} else {
		logger.InfoKV(ctx, "Image not cached, downloading", "file", artifact.Filename)
	}

	path, err := s.downloader.Download(ctx, descriptor, workDir)
	if err != nil {
		return nil, err
	}

	result.ArtifactPath = path

	return result, nil
}

// reuseCached copies the cached image to dest and re-checks it against the
// piece hashes. A copy that fails the re-check stays in place, trimmed to the
// payload length, so the torrent client resumes from its valid pieces.
func (s *Stage) reuseCached(ctx context.Context, descriptor *transfer.Descriptor, cachePath, dest string) (bool, error) {
	if err := fsutil.CopyFile(cachePath, dest, config.ImageFilePermissions); err != nil {
		return false, err
	}

	err := descriptor.VerifyFile(ctx, dest)
	if err == nil {
		logger.InfoKV(ctx, "Cached image matches the torrent", "pieces", descriptor.NumPieces())

		return true, nil
	}

	if !errors.Is(err, transfer.ErrPieceMismatch) && !errors.Is(err, transfer.ErrLengthMismatch) {
		return false, fmt.Errorf("re-check cached image: %w", err)
	}

	logger.WarnKV(ctx, "Cached image failed the piece re-check, resuming the transfer", "error", err)

	info, err := os.Stat(dest)
	if err != nil {
		return false, err
	}

	if info.Size() > descriptor.Length() {
		if err = os.Truncate(dest, descriptor.Length()); err != nil {
			return false, fmt.Errorf("trim cached image: %w", err)
		}
	}

	return false, nil
}
