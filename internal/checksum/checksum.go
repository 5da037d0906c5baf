// Package checksum hashes files and reads coreutils-style checksum manifests.
package checksum

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// SHA256 is the algorithm of sha256sums.txt.
	SHA256 = "sha256"
	// BLAKE2b is the algorithm of b2sums.txt (BLAKE2b-512, as b2sum writes it).
	BLAKE2b = "blake2b"
)

var (
	// ErrEntryMissing is returned when a manifest has no line for the file.
	ErrEntryMissing = errors.New("checksum entry missing")
	// ErrMismatch is returned when a file does not hash to the expected value.
	ErrMismatch = errors.New("checksum mismatch")
	// errUnknownAlgorithm is returned for unsupported algorithm names.
	errUnknownAlgorithm = errors.New("unknown checksum algorithm")
)

// New returns a hash for algorithm.
func New(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case BLAKE2b:
		return blake2b.New512(nil)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownAlgorithm, algorithm)
	}
}

// File returns the lowercase hex digest of the file at path.
func File(path, algorithm string) (string, error) {
	h, err := New(algorithm)
	if err != nil {
		return "", err
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	if _, err = io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Find returns the digest listed for filename in a manifest of "<digest>  <name>" lines.
// Binary-mode markers ("*name") and directory prefixes are accepted.
func Find(manifest io.Reader, filename string) (string, error) {
	scanner := bufio.NewScanner(manifest)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}

		name := strings.TrimPrefix(fields[1], "*")
		if name == filename || filepath.Base(name) == filename {
			return strings.ToLower(fields[0]), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan manifest: %w", err)
	}

	return "", fmt.Errorf("%s: %w", filename, ErrEntryMissing)
}

// VerifyFile checks path against its entry in the manifest file.
func VerifyFile(path, manifestPath, algorithm string) error {
	manifest, err := os.Open(filepath.Clean(manifestPath))
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}

	defer func() {
		_ = manifest.Close()
	}()

	want, err := Find(manifest, filepath.Base(path))
	if err != nil {
		return err
	}

	have, err := File(path, algorithm)
	if err != nil {
		return err
	}

	if have != want {
		return fmt.Errorf("%s: %w: have %s, want %s", filepath.Base(path), ErrMismatch, have, want)
	}

	return nil
}
