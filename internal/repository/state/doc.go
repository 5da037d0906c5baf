// Package state persists the record of the last published release.
//
// The FileRepository stores the record as YAML next to the cached images and
// exposes a Repository interface that the pipeline and the status command
// depend on.
package state
