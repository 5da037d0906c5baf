// Package release holds the domain model of a distribution release: the
// date-formatted version, the artifact derived from it, and the stage errors
// the pipeline classifies its failures with.
package release
