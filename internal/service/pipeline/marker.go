package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/archburn/internal/config"
	"github.com/oshokin/archburn/internal/logger"
)

const (
	// MarkerFilename marks a run in progress inside the cache directory.
	MarkerFilename = ".archburn.lock"
	// markerLifetime is the age after which a marker is stale whoever holds it.
	markerLifetime = 24 * time.Hour
)

// errAlreadyRunning is returned when another live run holds the marker.
var errAlreadyRunning = errors.New("another archburn run is using the cache")

// runMarker guards a cache directory against concurrent runs.
type runMarker struct {
	// path is the marker file.
	path string
	// executable is the process name a live holder must have.
	executable string
}

// newRunMarker creates a marker for cacheDir held by processes named like this one.
func newRunMarker(cacheDir string) *runMarker {
	executable, err := os.Executable()
	if err != nil {
		executable = "archburn"
	}

	return &runMarker{
		path:       filepath.Join(cacheDir, MarkerFilename),
		executable: filepath.Base(executable),
	}
}

// acquire creates the marker, clearing a stale one first.
func (m *runMarker) acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(m.path), config.DefaultDirPermissions); err != nil {
		return err
	}

	if m.isHeld(ctx) {
		return fmt.Errorf("%w: %s", errAlreadyRunning, m.path)
	}

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("create run marker: %w", err)
	}

	_, err = f.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	return err
}

// release removes the marker.
func (m *runMarker) release(ctx context.Context) {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove run marker", "path", m.path, "error", err)
	}
}

// isHeld reports whether a live run owns the marker. A stale marker is removed.
func (m *runMarker) isHeld(ctx context.Context) bool {
	info, err := os.Stat(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	if err != nil {
		logger.Infof(ctx, "Unable to read run marker: %v", err)

		return false
	}

	if time.Since(info.ModTime()) <= markerLifetime && m.holderAlive() {
		return true
	}

	logger.Info(ctx, "The run marker is stale, removing it")

	if err = os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true
	}

	return false
}

// holderAlive reports whether the PID in the marker belongs to a running archburn.
func (m *runMarker) holderAlive() bool {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid == os.Getpid() {
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return false
	}

	return process.Executable() == m.executable
}
