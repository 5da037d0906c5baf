package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/oshokin/archburn/internal/config"
	"github.com/oshokin/archburn/internal/domain/release"
	"github.com/oshokin/archburn/internal/logger"
	"github.com/oshokin/archburn/internal/repository/state"
	"github.com/oshokin/archburn/internal/service/acquire"
	"github.com/oshokin/archburn/internal/service/installer"
	"github.com/oshokin/archburn/internal/service/publish"
	"github.com/oshokin/archburn/internal/service/resolver"
	"github.com/oshokin/archburn/internal/service/verify"
)

// workDirPattern names the temporary working directory.
const workDirPattern = "archburn-*"

// Acquirer is the acquisition stage.
type Acquirer interface {
	Acquire(ctx context.Context, artifact release.Artifact, workDir string) (*acquire.Result, error)
}

// Verifier is the verification stage.
type Verifier interface {
	Verify(ctx context.Context, in verify.Input) error
}

// Installer is the interactive installer stage.
type Installer interface {
	Run(ctx context.Context, image string) (installer.Outcome, error)
}

// Dependencies wires the stages of a Runner.
type Dependencies struct {
	// Pages fetches the release index.
	Pages resolver.PageFetcher
	// Acquirer obtains the image and its auxiliary files.
	Acquirer Acquirer
	// Verifier checks checksum and signature.
	Verifier Verifier
	// Records stores the last published release; optional.
	Records state.Repository
	// Installer offers the USB write; nil runs headless.
	Installer Installer
}

// Report summarises a successful run.
type Report struct {
	// Record describes the published image.
	Record release.Record
	// Outcome is how the installer ended; OutcomeDeclined when it did not run.
	Outcome installer.Outcome
}

// Runner executes the pipeline.
type Runner struct {
	// cfg is the run configuration.
	cfg *config.Config
	// deps are the stage implementations.
	deps Dependencies
	// tempDir is where working directories are created; empty means os.TempDir.
	tempDir string
	// now stamps the release record.
	now func() time.Time
}

// New creates a runner.
func New(cfg *config.Config, deps Dependencies) *Runner {
	return &Runner{
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
	}
}

// Run resolves, acquires, verifies and publishes the newest release, then
// offers to install it. Every returned error wraps a stage error from the
// release package, except for run marker and working directory failures.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	marker := newRunMarker(r.cfg.CacheDir)
	if err := marker.acquire(ctx); err != nil {
		return nil, err
	}

	defer marker.release(ctx)

	workDir, err := os.MkdirTemp(r.tempDir, workDirPattern)
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	cleanup := sync.OnceFunc(func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.WarnKV(ctx, "Unable to remove working directory", "path", workDir, "error", err)

			return
		}

		logger.DebugKV(ctx, "Working directory removed", "path", workDir)
	})
	defer cleanup()

	logger.DebugKV(ctx, "Working directory created", "path", workDir)

	report, err := r.run(ctx, workDir)
	if err != nil {
		return nil, err
	}

	// The installer reads the published file, the working copy is gone by now.
	cleanup()

	if r.deps.Installer == nil {
		return report, nil
	}

	report.Outcome, err = r.deps.Installer.Run(ctx, report.Record.PublishedPath)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Installer finished", "outcome", report.Outcome.String())

	return report, nil
}

// run executes stages one to four inside workDir.
func (r *Runner) run(ctx context.Context, workDir string) (*Report, error) {
	ctx = logger.WithName(ctx, "pipeline")

	version, err := resolver.Resolve(ctx, r.deps.Pages, r.cfg.IndexURL)
	if err != nil {
		return nil, err
	}

	artifact := release.NewArtifact(version)
	ctx = logger.WithKV(ctx, "version", version.String())

	acquired, err := r.deps.Acquirer.Acquire(ctx, artifact, workDir)
	if err != nil {
		return nil, err
	}

	err = r.deps.Verifier.Verify(ctx, verify.Input{
		ArtifactPath:  acquired.ArtifactPath,
		ManifestPath:  acquired.ManifestPath,
		SignaturePath: acquired.SignaturePath,
	})
	if err != nil {
		return nil, err
	}

	published, err := publish.Publish(ctx, acquired.ArtifactPath, r.cfg.DownloadsDir, r.cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	record := release.Record{
		Version:       version,
		Filename:      artifact.Filename,
		SHA256:        published.SHA256,
		PublishedPath: published.PublishedPath,
		CachePath:     published.CachePath,
		FromCache:     acquired.FromCache,
		PublishedAt:   r.now().UTC(),
	}

	if r.deps.Records != nil {
		if err = r.deps.Records.Save(ctx, &record); err != nil {
			logger.WarnKV(ctx, "Unable to save the release record", "error", err)
		}
	}

	logger.InfoKV(ctx, "Release ready", "path", record.PublishedPath)

	return &Report{Record: record, Outcome: installer.OutcomeDeclined}, nil
}
