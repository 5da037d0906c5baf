package device

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/lxc/incus/v6/shared/subprocess"
	"github.com/lxc/incus/v6/shared/units"
)

var (
	// ErrUnexpectedOutput is returned when a tool prints something the parser does not recognise.
	ErrUnexpectedOutput = errors.New("unexpected tool output")
	// errUnknownDrive is returned when a drive is not part of the current listing.
	errUnknownDrive = errors.New("drive is not a removable disk")
)

// Drive is a removable block device.
type Drive struct {
	// Path is the platform handle, /dev/sdX on Linux and /dev/diskN on macOS.
	Path string
	// Size is the capacity in bytes.
	Size int64
	// Model is the vendor and model string, if the OS reports one.
	Model string
	// Transport is the bus, e.g. usb.
	Transport string
}

// HumanSize returns the capacity in a readable unit.
func (d Drive) HumanSize() string {
	return units.GetByteSizeString(d.Size, 1)
}

// String renders the drive as a menu line.
func (d Drive) String() string {
	parts := []string{d.Path, d.HumanSize()}

	if d.Model != "" {
		parts = append(parts, d.Model)
	}

	if d.Transport != "" {
		parts = append(parts, "("+d.Transport+")")
	}

	return strings.Join(parts, "  ")
}

// Enumerator lists removable drives.
type Enumerator interface {
	// List returns the removable drives in OS order.
	List(ctx context.Context) ([]Drive, error)
	// Describe returns the detailed metadata shown before the confirmation prompt.
	Describe(ctx context.Context, d Drive) (string, error)
}

// Writer performs the destructive part of an install.
type Writer interface {
	// Unmount releases every mounted filesystem of the drive.
	Unmount(ctx context.Context, d Drive) error
	// Write copies the image onto the raw drive and flushes it.
	Write(ctx context.Context, image string, d Drive) error
}

// Backend is the platform implementation of both capabilities.
type Backend interface {
	Enumerator
	Writer
	// RequiredTools lists the external executables the backend runs.
	RequiredTools() []string
}

// runFunc runs an external command and returns its standard output.
type runFunc func(ctx context.Context, name string, args ...string) (string, error)

// defaultRun runs commands through the incus subprocess helper.
//
//nolint:gochecknoglobals // Replaced in tests only.
var defaultRun runFunc = subprocess.RunCommandContext

// MissingTools returns the required tools of b that are not on PATH.
func MissingTools(b Backend) []string {
	var missing []string

	for _, tool := range b.RequiredTools() {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}

	return missing
}

// findDrive returns the drive at path from a fresh listing.
func findDrive(ctx context.Context, e Enumerator, path string) (Drive, error) {
	drives, err := e.List(ctx)
	if err != nil {
		return Drive{}, err
	}

	for _, d := range drives {
		if d.Path == path {
			return d, nil
		}
	}

	return Drive{}, fmt.Errorf("%s: %w", path, errUnknownDrive)
}
