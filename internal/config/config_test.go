package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/archburn/internal/domain/release"
)

// TestValidate checks defaults and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := new(Config)
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultIndexURL, cfg.IndexURL)
	require.Equal(t, AlgorithmSHA256, cfg.ChecksumAlgorithm)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultUploadRateLimit, cfg.Torrent.UploadRateLimit)

	// Unknown algorithm.
	cfg = &Config{ChecksumAlgorithm: "md5"}
	require.ErrorIs(t, Validate(cfg), errUnknownAlgorithm)

	// Bad identity.
	cfg = &Config{SigningIdentity: "not an address"}
	require.Error(t, Validate(cfg))

	// Bad URL.
	cfg = &Config{IndexURL: "mirror without scheme"}
	require.Error(t, Validate(cfg))

	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "archburn.yaml")

	cfg := &Config{
		IndexURL:          "https://mirror.example/iso/",
		ChecksumAlgorithm: "BLAKE2b",
		DownloadsDir:      "/srv/isos",
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://mirror.example/iso/", loaded.IndexURL)
	require.Equal(t, AlgorithmBLAKE2b, loaded.ChecksumAlgorithm)
	require.Equal(t, "/srv/isos", loaded.DownloadsDir)
	require.Equal(t, "b2sums.txt", loaded.ManifestName())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	defaults, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultSigningIdentity, defaults.SigningIdentity)
}

// TestApplyEnvironment covers the directory overrides and the debug toggle.
func TestApplyEnvironment(t *testing.T) {
	t.Parallel()

	home := func() (string, error) { return "/home/user", nil }

	env := func(values map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := values[key]

			return v, ok
		}
	}

	// Home defaults.
	cfg := Default()
	require.NoError(t, ApplyEnvironment(cfg, env(nil), home))
	require.Equal(t, "/home/user/Downloads", cfg.DownloadsDir)
	require.Equal(t, "/home/user/.cache/archlinux", cfg.CacheDir)
	require.False(t, cfg.Debug)

	// Environment overrides.
	cfg = Default()
	require.NoError(t, ApplyEnvironment(cfg, env(map[string]string{
		EnvDebug:        "1",
		EnvDownloadsDir: "/data/dl",
		EnvCacheHome:    "/data/cache",
	}), home))
	require.Equal(t, "/data/dl", cfg.DownloadsDir)
	require.Equal(t, "/data/cache/archlinux", cfg.CacheDir)
	require.True(t, cfg.Debug)

	// Flags win over the environment.
	cfg = Default()
	cfg.CacheDir = "/flag/cache"
	require.NoError(t, ApplyEnvironment(cfg, env(map[string]string{EnvCacheHome: "/data/cache", EnvDebug: "false"}), home))
	require.Equal(t, "/flag/cache", cfg.CacheDir)
	require.False(t, cfg.Debug)

	// No home and no overrides.
	cfg = Default()
	err := ApplyEnvironment(cfg, env(nil), func() (string, error) { return "", errors.New("no passwd entry") })
	require.ErrorIs(t, err, errNoHome)
}

// TestURLTemplates expands the per-release URLs.
func TestURLTemplates(t *testing.T) {
	t.Parallel()

	cfg := Default()
	artifact := release.NewArtifact("2025.03.11")

	require.Equal(t, "https://archlinux.org/releng/releases/2025.03.11/torrent/", cfg.TorrentURLFor(artifact))
	require.Equal(t, "https://archlinux.org/iso/2025.03.11/archlinux-2025.03.11-x86_64.iso.sig", cfg.SignatureURLFor(artifact))
	require.Equal(t, "https://geo.mirror.pkgbuild.com/iso/2025.03.11/sha256sums.txt", cfg.ChecksumURLFor(artifact))
}
