package platform

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/archburn/internal/device"
)

// TestBackend checks the backend selected per operating system.
func TestBackend(t *testing.T) {
	t.Parallel()

	backend, ok := Backend(Info{OS: Linux})
	require.True(t, ok)
	require.IsType(t, &device.Linux{}, backend)
	require.Equal(t, []string{"lsblk"}, backend.RequiredTools())

	backend, ok = Backend(Info{OS: Darwin})
	require.True(t, ok)
	require.IsType(t, &device.Darwin{}, backend)

	_, ok = Backend(Info{OS: "windows"})
	require.False(t, ok)
}

// TestDetect checks that the OS always comes from the runtime.
func TestDetect(t *testing.T) {
	t.Parallel()

	info := Detect(context.Background())
	require.Equal(t, runtime.GOOS, info.OS)
	require.Contains(t, info.String(), runtime.GOOS)
}
