// Package version exposes build metadata for archburn.
//
// Version, Commit and BuildTime are injected at build time via ldflags.
package version
