package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/archburn/internal/config"
	"github.com/oshokin/archburn/internal/domain/release"
)

// DefaultFilename is the record file inside the cache directory.
const DefaultFilename = "last-release.yaml"

// Repository defines persistence operations for the release record.
type Repository interface {
	Load(ctx context.Context) (*release.Record, error)
	Save(ctx context.Context, record *release.Record) error
}

// FileRepository persists the release record to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the record file.
	path string
	// mu protects concurrent access to the record file.
	mu sync.Mutex
}

// ErrNotFound is returned when no release has been published yet.
var ErrNotFound = errors.New("release record not found")

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the record file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the record from disk.
func (r *FileRepository) Load(_ context.Context) (*release.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read release record: %w", err)
	}

	var record release.Record
	if err = yaml.Unmarshal(contents, &record); err != nil {
		return nil, fmt.Errorf("decode release record: %w", err)
	}

	return &record, nil
}

// Save writes the record to disk through a temporary file.
func (r *FileRepository) Save(_ context.Context, record *release.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode release record: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write release record: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("replace release record: %w", err)
	}

	return nil
}
