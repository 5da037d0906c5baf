//go:build linux

package device

import "golang.org/x/sys/unix"

// unmountPath detaches the filesystem mounted at target.
func unmountPath(target string) error {
	return unix.Unmount(target, 0)
}
