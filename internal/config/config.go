package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/archburn/internal/checksum"
	"github.com/oshokin/archburn/internal/domain/release"
)

// Config is the run configuration built once at startup and passed to every stage.
type Config struct {
	// IndexURL is the page listing the published release versions.
	IndexURL string `yaml:"index_url"`
	// TorrentURL is the torrent descriptor URL template.
	TorrentURL string `yaml:"torrent_url"`
	// SignatureURL is the detached signature URL template.
	SignatureURL string `yaml:"signature_url"`
	// ChecksumURL is the checksum manifest URL template.
	ChecksumURL string `yaml:"checksum_url"`
	// ChecksumAlgorithm selects the manifest: sha256 or blake2b.
	ChecksumAlgorithm string `yaml:"checksum_algorithm"`
	// SigningIdentity is the email address the release signing key is looked up by.
	SigningIdentity string `yaml:"signing_identity"`
	// KeyServerURL is the verifying keyserver queried after Web Key Directory lookups.
	KeyServerURL string `yaml:"keyserver_url"`
	// Timeout bounds every plain HTTP request.
	Timeout time.Duration `yaml:"timeout"`
	// Torrent tunes the one-shot torrent transfer.
	Torrent TorrentConfig `yaml:"torrent"`
	// DownloadsDir receives the published image.
	DownloadsDir string `yaml:"downloads_dir,omitempty"`
	// CacheDir keeps durable copies of published images and resolved keys.
	CacheDir string `yaml:"cache_dir,omitempty"`
	// Debug enables debug logging. It is set from the environment only.
	Debug bool `yaml:"-"`
}

// TorrentConfig tunes the torrent client.
type TorrentConfig struct {
	// UploadRateLimit caps uploads in bytes per second while downloading.
	UploadRateLimit int `yaml:"upload_rate_limit"`
	// ListenPort is the peer port; 0 picks a random free port.
	ListenPort int `yaml:"listen_port"`
	// ProgressInterval is how often transfer progress is logged.
	ProgressInterval time.Duration `yaml:"progress_interval"`
	// StallTimeout aborts the transfer when no byte arrives for this long.
	StallTimeout time.Duration `yaml:"stall_timeout"`
	// DisableDHT limits peer discovery to trackers and web seeds.
	DisableDHT bool `yaml:"disable_dht"`
}

const (
	// DefaultConfigFilename is the default filename for the optional settings file.
	DefaultConfigFilename = "archburn.yaml"

	// DefaultIndexURL lists every release directory on the geo mirror.
	DefaultIndexURL = "https://geo.mirror.pkgbuild.com/iso/"
	// DefaultTorrentURL serves the torrent descriptor of a release.
	DefaultTorrentURL = "https://archlinux.org/releng/releases/{version}/torrent/"
	// DefaultSignatureURL serves the detached signature from the main site, never from a mirror.
	DefaultSignatureURL = "https://archlinux.org/iso/{version}/{filename}.sig"
	// DefaultChecksumURL serves the checksum manifest.
	DefaultChecksumURL = "https://geo.mirror.pkgbuild.com/iso/{version}/{manifest}"
	// DefaultSigningIdentity is the release engineer who signs the ISO.
	DefaultSigningIdentity = "pierre@archlinux.org"
	// DefaultKeyServerURL is the verifying keyserver.
	DefaultKeyServerURL = "https://keys.openpgp.org"

	// AlgorithmSHA256 selects sha256sums.txt.
	AlgorithmSHA256 = checksum.SHA256
	// AlgorithmBLAKE2b selects b2sums.txt.
	AlgorithmBLAKE2b = checksum.BLAKE2b

	// DefaultTimeout bounds plain HTTP requests.
	DefaultTimeout = 30 * time.Second
	// DefaultUploadRateLimit keeps uploads to a trickle during the download.
	DefaultUploadRateLimit = 1 << 10
	// DefaultProgressInterval is how often torrent progress is logged.
	DefaultProgressInterval = 5 * time.Second
	// DefaultStallTimeout aborts a torrent transfer that stopped making progress.
	DefaultStallTimeout = 5 * time.Minute

	// ProductName names the cache subdirectory.
	ProductName = "archlinux"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
	// ImageFilePermissions is used for published and cached images.
	ImageFilePermissions = 0o644
	// DefaultDirPermissions is used for every directory the tool creates.
	DefaultDirPermissions = 0o755
)

// Recognized environment variables.
const (
	EnvDebug        = "DEBUG"
	EnvDownloadsDir = "XDG_DOWNLOAD_DIR"
	EnvCacheHome    = "XDG_CACHE_HOME"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownAlgorithm is returned for an unsupported checksum algorithm.
	errUnknownAlgorithm = errors.New("unknown checksum algorithm")
	// errNoHome is returned when neither an override nor a home directory is available.
	errNoHome = errors.New("unable to determine home directory")
)

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	cfg := new(Config)

	// Validate only fills defaults on an empty config, it cannot fail here.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks URLs, the algorithm and the signing identity.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	setDefault(&cfg.IndexURL, DefaultIndexURL)
	setDefault(&cfg.TorrentURL, DefaultTorrentURL)
	setDefault(&cfg.SignatureURL, DefaultSignatureURL)
	setDefault(&cfg.ChecksumURL, DefaultChecksumURL)
	setDefault(&cfg.ChecksumAlgorithm, AlgorithmSHA256)
	setDefault(&cfg.SigningIdentity, DefaultSigningIdentity)
	setDefault(&cfg.KeyServerURL, DefaultKeyServerURL)

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Torrent.UploadRateLimit <= 0 {
		cfg.Torrent.UploadRateLimit = DefaultUploadRateLimit
	}

	if cfg.Torrent.ProgressInterval <= 0 {
		cfg.Torrent.ProgressInterval = DefaultProgressInterval
	}

	if cfg.Torrent.StallTimeout <= 0 {
		cfg.Torrent.StallTimeout = DefaultStallTimeout
	}

	urls := map[string]string{
		"index_url":     cfg.IndexURL,
		"torrent_url":   cfg.TorrentURL,
		"signature_url": cfg.SignatureURL,
		"checksum_url":  cfg.ChecksumURL,
		"keyserver_url": cfg.KeyServerURL,
	}
	for name, raw := range urls {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	cfg.ChecksumAlgorithm = strings.ToLower(strings.TrimSpace(cfg.ChecksumAlgorithm))
	if !slices.Contains([]string{AlgorithmSHA256, AlgorithmBLAKE2b}, cfg.ChecksumAlgorithm) {
		return fmt.Errorf("%w: %s", errUnknownAlgorithm, cfg.ChecksumAlgorithm)
	}

	if _, err := mail.ParseAddress(cfg.SigningIdentity); err != nil {
		return fmt.Errorf("invalid signing identity: %w", err)
	}

	return nil
}

// ApplyEnvironment applies the recognized environment variables and resolves
// the downloads and cache directories. Values already set by flags win over
// the environment, and the environment wins over the home directory defaults.
func ApplyEnvironment(cfg *Config, lookup func(string) (string, bool), home func() (string, error)) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if v, ok := lookup(EnvDebug); ok {
		cfg.Debug = isTruthy(v)
	}

	if cfg.DownloadsDir == "" {
		if v, ok := lookup(EnvDownloadsDir); ok && v != "" {
			cfg.DownloadsDir = v
		}
	}

	if cfg.CacheDir == "" {
		if v, ok := lookup(EnvCacheHome); ok && v != "" {
			cfg.CacheDir = filepath.Join(v, ProductName)
		}
	}

	if cfg.DownloadsDir != "" && cfg.CacheDir != "" {
		return nil
	}

	homeDir, err := home()
	if err != nil {
		return fmt.Errorf("%w: %w", errNoHome, err)
	}

	if homeDir == "" {
		return errNoHome
	}

	if cfg.DownloadsDir == "" {
		cfg.DownloadsDir = filepath.Join(homeDir, "Downloads")
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(homeDir, ".cache", ProductName)
	}

	return nil
}

// ManifestName returns the checksum manifest filename for the configured algorithm.
func (c *Config) ManifestName() string {
	if c.ChecksumAlgorithm == AlgorithmBLAKE2b {
		return "b2sums.txt"
	}

	return "sha256sums.txt"
}

// TorrentURLFor expands the torrent URL template for the artifact.
func (c *Config) TorrentURLFor(a release.Artifact) string {
	return c.expand(c.TorrentURL, a)
}

// SignatureURLFor expands the signature URL template for the artifact.
func (c *Config) SignatureURLFor(a release.Artifact) string {
	return c.expand(c.SignatureURL, a)
}

// ChecksumURLFor expands the checksum manifest URL template for the artifact.
func (c *Config) ChecksumURLFor(a release.Artifact) string {
	return c.expand(c.ChecksumURL, a)
}

// expand substitutes {version}, {filename} and {manifest} in template.
func (c *Config) expand(template string, a release.Artifact) string {
	return strings.NewReplacer(
		"{version}", a.Version.String(),
		"{filename}", a.Filename,
		"{manifest}", c.ManifestName(),
	).Replace(template)
}

// setDefault assigns value to an empty field.
func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

// isTruthy reports whether an environment toggle is switched on.
func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
