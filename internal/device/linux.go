package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/oshokin/archburn/internal/logger"
)

// Linux drives lsblk for listing and unmount(2) for releasing partitions.
type Linux struct {
	// run executes external tools.
	run runFunc
	// partitions lists mounted filesystems.
	partitions func(ctx context.Context) ([]disk.PartitionStat, error)
	// unmount detaches the filesystem mounted at target.
	unmount func(target string) error
}

// NewLinux creates the Linux backend.
func NewLinux() *Linux {
	return &Linux{
		run: defaultRun,
		partitions: func(ctx context.Context) ([]disk.PartitionStat, error) {
			return disk.PartitionsWithContext(ctx, true)
		},
		unmount: unmountPath,
	}
}

// RequiredTools implements Backend.
func (l *Linux) RequiredTools() []string {
	return []string{"lsblk"}
}

// List implements Enumerator.
func (l *Linux) List(ctx context.Context) ([]Drive, error) {
	return listLsblk(ctx, l.run)
}

// Describe implements Enumerator.
func (l *Linux) Describe(ctx context.Context, d Drive) (string, error) {
	return l.run(ctx, "lsblk", "--paths", "--output", "NAME,SIZE,TYPE,FSTYPE,LABEL,MOUNTPOINT,MODEL,TRAN", d.Path)
}

// Unmount implements Writer. Partitions are unmounted deepest mount point first.
func (l *Linux) Unmount(ctx context.Context, d Drive) error {
	mounted, err := l.partitions(ctx)
	if err != nil {
		return fmt.Errorf("list mounts: %w", err)
	}

	var targets []string

	for _, p := range mounted {
		if isPartitionOf(p.Device, d.Path) {
			targets = append(targets, p.Mountpoint)
		}
	}

	// Mount table order puts parents first.
	for i := len(targets) - 1; i >= 0; i-- {
		logger.InfoKV(ctx, "Unmounting", "mountpoint", targets[i])

		if err = l.unmount(targets[i]); err != nil {
			return fmt.Errorf("unmount %s: %w", targets[i], err)
		}
	}

	return nil
}

// Write implements Writer.
func (l *Linux) Write(ctx context.Context, image string, d Drive) error {
	if _, err := findDrive(ctx, l, d.Path); err != nil {
		return err
	}

	return rawCopy(ctx, image, d.Path)
}

// isPartitionOf reports whether device is disk itself or one of its partitions
// (/dev/sdb1 of /dev/sdb, /dev/mmcblk0p1 of /dev/mmcblk0). Disks whose names end
// in a digit separate the partition number with "p", so /dev/nvme0n10 is a disk.
func isPartitionOf(device, disk string) bool {
	if device == disk {
		return true
	}

	rest, ok := strings.CutPrefix(device, disk)
	if !ok || rest == "" || disk == "" {
		return false
	}

	if last := disk[len(disk)-1]; last >= '0' && last <= '9' {
		if rest, ok = strings.CutPrefix(rest, "p"); !ok {
			return false
		}
	}

	return rest != "" && strings.Trim(rest, "0123456789") == ""
}
