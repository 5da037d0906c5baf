// Package config defines the archburn run configuration and provides helpers
// to load, validate and save it in YAML format.
//
// A configuration file is optional: defaults point at the Arch Linux mirrors
// and release signing identity. Environment variables and command line flags
// are layered on top by ApplyEnvironment and the CLI.
package config
