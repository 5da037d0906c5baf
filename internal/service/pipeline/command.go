package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lxc/incus/v6/shared/ask"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/oshokin/archburn/internal/config"
	"github.com/oshokin/archburn/internal/device"
	"github.com/oshokin/archburn/internal/fetcher"
	"github.com/oshokin/archburn/internal/keyring"
	"github.com/oshokin/archburn/internal/logger"
	"github.com/oshokin/archburn/internal/platform"
	"github.com/oshokin/archburn/internal/repository/state"
	"github.com/oshokin/archburn/internal/service/acquire"
	"github.com/oshokin/archburn/internal/service/installer"
	"github.com/oshokin/archburn/internal/service/verify"
	"github.com/oshokin/archburn/internal/transfer"
)

// keyringDirname holds cached signing keys inside the cache directory.
const keyringDirname = "keyring"

var (
	// errMissingTools is returned when the device backend cannot find its tools.
	errMissingTools = errors.New("required tools are missing")
	// errBadLogLevel is returned for an unknown --log-level value.
	errBadLogLevel = errors.New("unknown log level")
)

// Options carries the command-line inputs of a run.
type Options struct {
	// ConfigPath is the optional YAML settings file.
	ConfigPath string
	// DownloadsDir overrides the downloads directory.
	DownloadsDir string
	// CacheDir overrides the cache directory.
	CacheDir string
	// LogLevel is the --log-level flag value.
	LogLevel string
	// NoInstall skips the installer and its tool check.
	NoInstall bool
	// Stdin is where prompts read from.
	Stdin *os.File
	// Stdout receives the installer menu.
	Stdout io.Writer
}

// Run loads the configuration, wires every stage and runs the pipeline once.
func Run(ctx context.Context, options *Options) error {
	cfg, err := LoadConfig(options)
	if err != nil {
		return err
	}

	if err = applyLogLevel(options.LogLevel, cfg.Debug); err != nil {
		return err
	}

	host := platform.Detect(ctx)
	logger.DebugKV(ctx, "Host detected", "host", host.String())

	inst, err := newInstaller(ctx, host, options)
	if err != nil {
		return err
	}

	client := fetcher.New(cfg.Timeout)
	downloader := transfer.NewTorrentDownloader(transfer.Options{
		UploadRateLimit:  cfg.Torrent.UploadRateLimit,
		ListenPort:       cfg.Torrent.ListenPort,
		ProgressInterval: cfg.Torrent.ProgressInterval,
		StallTimeout:     cfg.Torrent.StallTimeout,
		DisableDHT:       cfg.Torrent.DisableDHT,
	})
	keys := keyring.NewResolver(client, filepath.Join(cfg.CacheDir, keyringDirname), cfg.KeyServerURL)

	deps := Dependencies{
		Pages:    client,
		Acquirer: acquire.New(cfg, client, downloader),
		Verifier: verify.New(cfg.ChecksumAlgorithm, cfg.SigningIdentity, keys),
		Records:  state.NewFileRepository(filepath.Join(cfg.CacheDir, state.DefaultFilename)),
	}

	// A typed nil inside the interface would still be called.
	if inst != nil {
		deps.Installer = inst
	}

	logger.InfoKV(ctx, "Starting",
		"downloads", cfg.DownloadsDir,
		"cache", cfg.CacheDir,
		"installer", inst != nil)

	report, err := New(cfg, deps).Run(ctx)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Done",
		"version", report.Record.Version.String(),
		"image", report.Record.PublishedPath,
		"install", report.Outcome.String())

	return nil
}

// LoadConfig reads the settings file and applies flags and the environment on top.
func LoadConfig(options *Options) (*config.Config, error) {
	cfg, err := config.Load(options.ConfigPath)
	if err != nil {
		return nil, err
	}

	if options.DownloadsDir != "" {
		cfg.DownloadsDir = options.DownloadsDir
	}

	if options.CacheDir != "" {
		cfg.CacheDir = options.CacheDir
	}

	if err = config.ApplyEnvironment(cfg, os.LookupEnv, os.UserHomeDir); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyLogLevel sets the global level; DEBUG in the environment forces debug.
func applyLogLevel(flagValue string, debug bool) error {
	if debug {
		logger.SetLevel(zapcore.DebugLevel)

		return nil
	}

	if flagValue == "" {
		return nil
	}

	level, ok := logger.ParseLogLevel(flagValue)
	if !ok {
		return fmt.Errorf("%w: %q", errBadLogLevel, flagValue)
	}

	logger.SetLevel(level)

	return nil
}

// newInstaller returns the installer stage, or nil when the run stays headless.
func newInstaller(ctx context.Context, host platform.Info, options *Options) (*installer.Stage, error) {
	if options.NoInstall {
		return nil, nil //nolint:nilnil // No installer is a valid configuration.
	}

	backend, ok := platform.Backend(host)
	if !ok {
		logger.WarnKV(ctx, "Writing drives is not supported on this platform", "os", host.OS)

		return nil, nil //nolint:nilnil // No installer is a valid configuration.
	}

	if missing := device.MissingTools(backend); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s (use --no-install to skip the installer)",
			errMissingTools, strings.Join(missing, ", "))
	}

	if options.Stdin == nil || !term.IsTerminal(int(options.Stdin.Fd())) { //nolint:gosec // File descriptors fit in int.
		logger.Debug(ctx, "Standard input is not a terminal, the installer is disabled")

		return nil, nil //nolint:nilnil // No installer is a valid configuration.
	}

	asker := ask.NewAsker(bufio.NewReader(options.Stdin))

	return installer.New(backend, &asker, options.Stdout), nil
}
