package release

import "time"

// Record describes the last successfully published image.
type Record struct {
	// Version is the published release.
	Version Version `yaml:"version"`
	// Filename is the image name.
	Filename string `yaml:"filename"`
	// SHA256 is the hex digest of the image.
	SHA256 string `yaml:"sha256"`
	// PublishedPath is the image in the downloads directory.
	PublishedPath string `yaml:"published_path"`
	// CachePath is the durable copy.
	CachePath string `yaml:"cache_path"`
	// FromCache is true when the run reused a cached image.
	FromCache bool `yaml:"from_cache"`
	// PublishedAt is when the image was published.
	PublishedAt time.Time `yaml:"published_at"`
}
