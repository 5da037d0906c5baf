package device

import (
	"context"
	"fmt"

	"github.com/oshokin/archburn/internal/logger"
)

// Darwin drives diskutil for listing and unmounting.
type Darwin struct {
	// run executes external tools.
	run runFunc
}

// NewDarwin creates the macOS backend.
func NewDarwin() *Darwin {
	return &Darwin{run: defaultRun}
}

// RequiredTools implements Backend.
func (m *Darwin) RequiredTools() []string {
	return []string{"diskutil"}
}

// List implements Enumerator.
func (m *Darwin) List(ctx context.Context) ([]Drive, error) {
	output, err := m.run(ctx, "diskutil", "list", "external", "physical")
	if err != nil {
		return nil, err
	}

	nodes, err := parseDiskutilList(output)
	if err != nil {
		return nil, err
	}

	var drives []Drive

	for _, node := range nodes {
		info, err := m.Describe(ctx, Drive{Path: node})
		if err != nil {
			return nil, err
		}

		drive, ok, err := parseDiskutilInfo(node, info)
		if err != nil {
			return nil, err
		}

		if ok {
			drives = append(drives, drive)
		}
	}

	return drives, nil
}

// Describe implements Enumerator.
func (m *Darwin) Describe(ctx context.Context, d Drive) (string, error) {
	return m.run(ctx, "diskutil", "info", d.Path)
}

// Unmount implements Writer.
func (m *Darwin) Unmount(ctx context.Context, d Drive) error {
	logger.InfoKV(ctx, "Unmounting", "disk", d.Path)

	if _, err := m.run(ctx, "diskutil", "unmountDisk", d.Path); err != nil {
		return fmt.Errorf("diskutil unmountDisk %s: %w", d.Path, err)
	}

	return nil
}

// Write implements Writer. The raw /dev/rdiskN node bypasses the buffer cache.
func (m *Darwin) Write(ctx context.Context, image string, d Drive) error {
	if _, err := findDrive(ctx, m, d.Path); err != nil {
		return err
	}

	return rawCopy(ctx, image, rawDiskPath(d.Path))
}
