package release

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
)

// versionPattern matches a zero-padded YYYY.MM.DD release identifier.
var versionPattern = regexp.MustCompile(`\b(\d{4})\.(0[1-9]|1[0-2])\.(0[1-9]|[12]\d|3[01])\b`)

var errInvalidVersion = errors.New("invalid release version")

// Version is a calendar-formatted release identifier such as 2025.03.01.
// The format is zero-padded, so lexicographic order equals release order.
type Version string

// ParseVersion validates s as a release version.
func ParseVersion(s string) (Version, error) {
	loc := versionPattern.FindStringIndex(s)
	if loc == nil || loc[0] != 0 || loc[1] != len(s) {
		return "", fmt.Errorf("%q: %w", s, errInvalidVersion)
	}

	return Version(s), nil
}

// String returns the version as a plain string.
func (v Version) String() string {
	return string(v)
}

// FindVersions returns every release version mentioned in text, in order of appearance.
func FindVersions(text string) []Version {
	matches := versionPattern.FindAllString(text, -1)

	versions := make([]Version, 0, len(matches))
	for _, m := range matches {
		versions = append(versions, Version(m))
	}

	return versions
}

// Latest returns the greatest version of the list.
// The second result is false when the list is empty.
func Latest(versions []Version) (Version, bool) {
	if len(versions) == 0 {
		return "", false
	}

	return slices.Max(versions), true
}
