package release

import (
	"fmt"
	"path/filepath"
)

// DefaultArchitecture is the only architecture the release ISO is published for.
const DefaultArchitecture = "x86_64"

// Artifact is the release image identified by its deterministic filename.
type Artifact struct {
	// Version is the release the image belongs to.
	Version Version
	// Filename is the image name, e.g. archlinux-2025.03.01-x86_64.iso.
	Filename string
}

// NewArtifact derives the artifact for version v.
func NewArtifact(v Version) Artifact {
	return Artifact{
		Version:  v,
		Filename: fmt.Sprintf("archlinux-%s-%s.iso", v, DefaultArchitecture),
	}
}

// PathIn returns the location of the artifact inside dir.
func (a Artifact) PathIn(dir string) string {
	return filepath.Join(dir, a.Filename)
}
