// Package platform detects the host operating system once at startup and
// selects the matching device backend.
package platform

import (
	"context"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/oshokin/archburn/internal/device"
)

// Supported operating systems.
const (
	Linux  = "linux"
	Darwin = "darwin"
)

// Info describes the host.
type Info struct {
	// OS is runtime.GOOS.
	OS string
	// Platform is the distribution or product name, empty when unknown.
	Platform string
	// Version is the platform version, empty when unknown.
	Version string
}

// String renders the host for logs.
func (i Info) String() string {
	return strings.TrimSpace(strings.Join([]string{i.OS, i.Platform, i.Version}, " "))
}

// Detect returns the host description. Distribution details are best effort.
func Detect(ctx context.Context) Info {
	info := Info{OS: runtime.GOOS}

	platform, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		return info
	}

	info.Platform = strings.ToLower(strings.TrimSpace(platform))
	info.Version = strings.TrimSpace(version)

	return info
}

// Backend returns the device backend for the host, or false when drives cannot be managed there.
func Backend(info Info) (device.Backend, bool) {
	switch info.OS {
	case Linux:
		return device.NewLinux(), true
	case Darwin:
		return device.NewDarwin(), true
	default:
		return nil, false
	}
}
