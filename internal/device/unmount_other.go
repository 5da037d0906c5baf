//go:build !linux

package device

import (
	"errors"
	"runtime"
)

// errNoUnmount is returned where unmount(2) is not wired up.
var errNoUnmount = errors.New("direct unmount is not supported on " + runtime.GOOS)

// unmountPath is not available outside Linux.
func unmountPath(string) error {
	return errNoUnmount
}
