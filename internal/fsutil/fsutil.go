// Package fsutil holds the file moves and copies shared by the acquisition
// and publication stages.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/lxc/incus/v6/shared/revert"
)

// copyBufferSize matches the block size of the raw device write.
const copyBufferSize = 4 << 20

// Exists reports whether path is an existing regular file.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return info.Mode().IsRegular(), nil
}

// CopyFile copies src to dst through a temporary sibling, so dst is either
// the old file or the complete new one.
func CopyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	tmp := dst + ".part"

	out, err := os.OpenFile(filepath.Clean(tmp), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	reverter := revert.New()
	defer reverter.Fail()

	reverter.Add(func() {
		_ = out.Close()
		_ = os.Remove(tmp)
	})

	if _, err = io.CopyBuffer(out, in, make([]byte, copyBufferSize)); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}

	if err = out.Sync(); err != nil {
		return err
	}

	if err = out.Close(); err != nil {
		return err
	}

	if err = os.Rename(tmp, dst); err != nil {
		return err
	}

	reverter.Success()

	return nil
}

// Move renames src to dst, falling back to copy and remove across filesystems.
func Move(src, dst string, perm os.FileMode) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err = CopyFile(src, dst, perm); err != nil {
		return err
	}

	return os.Remove(src)
}
